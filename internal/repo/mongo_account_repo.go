package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tastykitchen/server/internal/model"
)

const accountsCollection = "accounts"

type secretDocument struct {
	Digest string `bson:"digest"`
	Scheme string `bson:"scheme"`
}

type pendingDocument struct {
	Hash      string    `bson:"hash"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

type accountDocument struct {
	ID            string           `bson:"_id"`
	Name          string           `bson:"name"`
	Email         string           `bson:"email,omitempty"`
	Phone         string           `bson:"phone,omitempty"`
	Password      *secretDocument  `bson:"password,omitempty"`
	Role          string           `bson:"role"`
	FederatedID   string           `bson:"federatedId,omitempty"`
	EmailVerified bool             `bson:"emailVerified"`
	PhoneVerified bool             `bson:"phoneVerified"`
	EmailOTP      *pendingDocument `bson:"emailOtp,omitempty"`
	PhoneOTP      *pendingDocument `bson:"phoneOtp,omitempty"`
	CreatedAt     time.Time        `bson:"createdAt"`
}

func toDocument(a *model.Account) accountDocument {
	doc := accountDocument{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		Role:          string(a.Role),
		FederatedID:   a.FederatedID,
		EmailVerified: a.EmailVerified,
		PhoneVerified: a.PhoneVerified,
		CreatedAt:     a.CreatedAt,
	}
	if a.Password != nil {
		doc.Password = &secretDocument{Digest: a.Password.Digest, Scheme: a.Password.Scheme}
	}
	if a.EmailOTP != nil {
		doc.EmailOTP = &pendingDocument{Hash: a.EmailOTP.Hash, ExpiresAt: a.EmailOTP.ExpiresAt}
	}
	if a.PhoneOTP != nil {
		doc.PhoneOTP = &pendingDocument{Hash: a.PhoneOTP.Hash, ExpiresAt: a.PhoneOTP.ExpiresAt}
	}
	return doc
}

func (d accountDocument) toModel() *model.Account {
	a := &model.Account{
		ID:            d.ID,
		Name:          d.Name,
		Email:         d.Email,
		Phone:         d.Phone,
		Role:          model.Role(d.Role),
		FederatedID:   d.FederatedID,
		EmailVerified: d.EmailVerified,
		PhoneVerified: d.PhoneVerified,
		CreatedAt:     d.CreatedAt,
	}
	if d.Password != nil {
		a.Password = &model.Secret{Digest: d.Password.Digest, Scheme: d.Password.Scheme}
	}
	if d.EmailOTP != nil {
		a.EmailOTP = &model.PendingCode{Hash: d.EmailOTP.Hash, ExpiresAt: d.EmailOTP.ExpiresAt}
	}
	if d.PhoneOTP != nil {
		a.PhoneOTP = &model.PendingCode{Hash: d.PhoneOTP.Hash, ExpiresAt: d.PhoneOTP.ExpiresAt}
	}
	return a
}

// MongoAccountRepo is an AccountRepo backed by a MongoDB collection
type MongoAccountRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoAccountRepo creates the repo and ensures its unique indexes exist
func NewMongoAccountRepo(ctx context.Context, db *mongo.Database) (*MongoAccountRepo, error) {
	r := &MongoAccountRepo{coll: db.Collection(accountsCollection), now: time.Now}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoAccountRepo) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "federatedId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepo) Kind() string { return "mongo" }

func (r *MongoAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if email == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoAccountRepo) FindByPhone(ctx context.Context, phone string) (*model.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *MongoAccountRepo) FindByFederatedID(ctx context.Context, federatedID string) (*model.Account, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"federatedId": federatedID})
}

func (r *MongoAccountRepo) FindByAnyOf(ctx context.Context, c Criteria) (*model.Account, error) {
	var or bson.A
	if c.FederatedID != "" {
		or = append(or, bson.M{"federatedId": c.FederatedID})
	}
	if c.Email != "" {
		or = append(or, bson.M{"email": c.Email})
	}
	if c.Phone != "" {
		or = append(or, bson.M{"phone": c.Phone})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"$or": or})
}

func (r *MongoAccountRepo) Upsert(ctx context.Context, account *model.Account) (*model.Account, error) {
	if err := prepareUpsert(account); err != nil {
		return nil, err
	}

	stored := account.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": stored.ID}, toDocument(stored), options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return stored, nil
}

func (r *MongoAccountRepo) ConsumeOTP(ctx context.Context, id string, ch model.Channel, hash string, now time.Time) (bool, error) {
	field, verified, err := otpFields(ch)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":                id,
		field + ".hash":      hash,
		field + ".expiresAt": bson.M{"$gt": now},
	}
	update := bson.M{
		"$unset": bson.M{field: ""},
		"$set":   bson.M{verified: true},
	}
	return r.updateOne(ctx, filter, update)
}

func (r *MongoAccountRepo) DiscardOTP(ctx context.Context, id string, ch model.Channel, hash string) (bool, error) {
	field, _, err := otpFields(ch)
	if err != nil {
		return false, err
	}
	return r.updateOne(ctx, bson.M{"_id": id, field + ".hash": hash}, bson.M{"$unset": bson.M{field: ""}})
}

func (r *MongoAccountRepo) updateOne(ctx context.Context, filter, update bson.M) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update account otp: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoAccountRepo) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	var doc accountDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return doc.toModel(), nil
}

func otpFields(ch model.Channel) (pending, verified string, err error) {
	switch ch {
	case model.ChannelEmail:
		return "emailOtp", "emailVerified", nil
	case model.ChannelPhone:
		return "phoneOtp", "phoneVerified", nil
	}
	return "", "", fmt.Errorf("unknown channel %q", ch)
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tastykitchen/server/internal/model"
)

const pgUniqueViolation = "23505"

const accountColumns = `id, name, email, phone, password_digest, password_scheme, role, federated_id,
	email_verified, phone_verified, email_otp_hash, email_otp_expires_at,
	phone_otp_hash, phone_otp_expires_at, created_at`

type postgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo creates an AccountRepo backed by PostgreSQL
func NewPostgresAccountRepo(db *sql.DB) AccountRepo {
	return &postgresAccountRepo{db: db}
}

func (r *postgresAccountRepo) Kind() string { return "postgres" }

// FindByID retrieves an account by ID
func (r *postgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByEmail retrieves an account by email
func (r *postgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if email == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// FindByPhone retrieves an account by phone number
func (r *postgresAccountRepo) FindByPhone(ctx context.Context, phone string) (*model.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

// FindByFederatedID retrieves an account by its federated identity subject
func (r *postgresAccountRepo) FindByFederatedID(ctx context.Context, federatedID string) (*model.Account, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE federated_id = $1`, federatedID)
}

// FindByAnyOf retrieves the oldest account matching any non-empty criterion
func (r *postgresAccountRepo) FindByAnyOf(ctx context.Context, c Criteria) (*model.Account, error) {
	if c.Empty() {
		return nil, nil
	}
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE ($1 <> '' AND federated_id = $1)
		   OR ($2 <> '' AND email = $2)
		   OR ($3 <> '' AND phone = $3)
		ORDER BY created_at
		LIMIT 1
	`
	return r.queryOne(ctx, query, c.FederatedID, c.Email, c.Phone)
}

// Upsert inserts a new account or replaces an existing one
func (r *postgresAccountRepo) Upsert(ctx context.Context, account *model.Account) (*model.Account, error) {
	if err := prepareUpsert(account); err != nil {
		return nil, err
	}

	stored := account.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	var digest, scheme sql.NullString
	if stored.Password != nil {
		digest = sql.NullString{String: stored.Password.Digest, Valid: true}
		scheme = sql.NullString{String: stored.Password.Scheme, Valid: true}
	}
	emailHash, emailExp := pendingColumns(stored.EmailOTP)
	phoneHash, phoneExp := pendingColumns(stored.PhoneOTP)

	query := `
		INSERT INTO accounts (id, name, email, phone, password_digest, password_scheme, role, federated_id,
			email_verified, phone_verified, email_otp_hash, email_otp_expires_at, phone_otp_hash, phone_otp_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			password_digest = EXCLUDED.password_digest,
			password_scheme = EXCLUDED.password_scheme,
			role = EXCLUDED.role,
			federated_id = EXCLUDED.federated_id,
			email_verified = EXCLUDED.email_verified,
			phone_verified = EXCLUDED.phone_verified,
			email_otp_hash = EXCLUDED.email_otp_hash,
			email_otp_expires_at = EXCLUDED.email_otp_expires_at,
			phone_otp_hash = EXCLUDED.phone_otp_hash,
			phone_otp_expires_at = EXCLUDED.phone_otp_expires_at
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		stored.ID,
		stored.Name,
		nullString(stored.Email),
		nullString(stored.Phone),
		digest,
		scheme,
		string(stored.Role),
		nullString(stored.FederatedID),
		stored.EmailVerified,
		stored.PhoneVerified,
		emailHash,
		emailExp,
		phoneHash,
		phoneExp,
	).Scan(&stored.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return stored, nil
}

// ConsumeOTP clears a matching, unexpired pending code and marks the channel verified
func (r *postgresAccountRepo) ConsumeOTP(ctx context.Context, id string, ch model.Channel, hash string, now time.Time) (bool, error) {
	var query string
	switch ch {
	case model.ChannelEmail:
		query = `
			UPDATE accounts
			SET email_otp_hash = NULL, email_otp_expires_at = NULL, email_verified = TRUE
			WHERE id = $1 AND email_otp_hash = $2 AND email_otp_expires_at > $3
		`
	case model.ChannelPhone:
		query = `
			UPDATE accounts
			SET phone_otp_hash = NULL, phone_otp_expires_at = NULL, phone_verified = TRUE
			WHERE id = $1 AND phone_otp_hash = $2 AND phone_otp_expires_at > $3
		`
	default:
		return false, fmt.Errorf("unknown channel %q", ch)
	}
	return r.execOne(ctx, query, id, hash, now)
}

// DiscardOTP clears a pending code if it is still the one identified by hash
func (r *postgresAccountRepo) DiscardOTP(ctx context.Context, id string, ch model.Channel, hash string) (bool, error) {
	var query string
	switch ch {
	case model.ChannelEmail:
		query = `UPDATE accounts SET email_otp_hash = NULL, email_otp_expires_at = NULL WHERE id = $1 AND email_otp_hash = $2`
	case model.ChannelPhone:
		query = `UPDATE accounts SET phone_otp_hash = NULL, phone_otp_expires_at = NULL WHERE id = $1 AND phone_otp_hash = $2`
	default:
		return false, fmt.Errorf("unknown channel %q", ch)
	}
	return r.execOne(ctx, query, id, hash)
}

func (r *postgresAccountRepo) execOne(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update account otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *postgresAccountRepo) queryOne(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		a                          model.Account
		email, phone, federatedID  sql.NullString
		digest, scheme, role       sql.NullString
		emailHash, phoneHash       sql.NullString
		emailExpires, phoneExpires sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.Name,
		&email,
		&phone,
		&digest,
		&scheme,
		&role,
		&federatedID,
		&a.EmailVerified,
		&a.PhoneVerified,
		&emailHash,
		&emailExpires,
		&phoneHash,
		&phoneExpires,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Email = email.String
	a.Phone = phone.String
	a.FederatedID = federatedID.String
	a.Role = model.Role(role.String)
	if digest.Valid {
		a.Password = &model.Secret{Digest: digest.String, Scheme: scheme.String}
	}
	if emailHash.Valid && emailExpires.Valid {
		a.EmailOTP = &model.PendingCode{Hash: emailHash.String, ExpiresAt: emailExpires.Time}
	}
	if phoneHash.Valid && phoneExpires.Valid {
		a.PhoneOTP = &model.PendingCode{Hash: phoneHash.String, ExpiresAt: phoneExpires.Time}
	}
	return &a, nil
}

func pendingColumns(p *model.PendingCode) (sql.NullString, sql.NullTime) {
	if p == nil {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: p.Hash, Valid: true}, sql.NullTime{Time: p.ExpiresAt, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

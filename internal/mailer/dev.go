package mailer

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const devOutboxLimit = 100

// DevMailer keeps sent messages in memory and logs them instead of delivering
type DevMailer struct {
	mu      sync.RWMutex
	baseURL string
	logger  *slog.Logger
	order   []string
	outbox  map[string]Message
}

// NewDevMailer creates a dev mailer. Preview links are built from baseURL.
func NewDevMailer(baseURL string, logger *slog.Logger) *DevMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DevMailer{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		outbox:  make(map[string]Message),
	}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (*Delivery, error) {
	id := uuid.NewString()

	d.mu.Lock()
	d.outbox[id] = msg
	d.order = append(d.order, id)
	if len(d.order) > devOutboxLimit {
		delete(d.outbox, d.order[0])
		d.order = d.order[1:]
	}
	d.mu.Unlock()

	preview := d.baseURL + "/api/dev/mail/" + id
	d.logger.InfoContext(ctx, "dev mail",
		"to", msg.To,
		"subject", msg.Subject,
		"preview_url", preview,
	)
	return &Delivery{MessageID: id, PreviewURL: preview}, nil
}

// Get returns a previously sent message
func (d *DevMailer) Get(id string) (Message, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	msg, ok := d.outbox[id]
	return msg, ok
}

package mailer

import "context"

// Message is a single outbound email
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Delivery describes an accepted message. PreviewURL is only set by mailers
// that keep a local copy of what was sent.
type Delivery struct {
	MessageID  string
	PreviewURL string
}

// Mailer dispatches email. Send blocks until the message is accepted or fails.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*Delivery, error)
}

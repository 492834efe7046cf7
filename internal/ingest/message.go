package ingest

import (
	"context"
	"time"
)

// Kind discriminates stream messages.
type Kind int

const (
	KindContent Kind = iota
	KindHeartbeat
	KindDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindHeartbeat:
		return "heartbeat"
	case KindDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Message is one item pushed by the stream. Only the fields relevant to Kind
// are set.
type Message struct {
	Kind Kind

	// Content.
	ID             string
	Text           string
	CreatedAt      time.Time
	IsReshare      bool
	IsQuote        bool
	IsReplyToOther bool

	// Disconnected.
	Code   int
	Reason string
}

// Eligible reports whether a content message is an original standalone post.
// Reshares, quotes and replies to someone else are never classified.
func (m Message) Eligible() bool {
	return m.Kind == KindContent && !m.IsReshare && !m.IsQuote && !m.IsReplyToOther
}

// Source opens stream connections. Filter parameters (account, language) are
// the source's concern and are fixed at construction.
type Source interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream yields messages from one connection. Next blocks until a message
// arrives, the connection fails, or ctx is done. An error wrapping
// apperr.ErrMalformedMessage means one payload was unreadable and the stream
// is still usable; any other error ends the connection.
type Stream interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

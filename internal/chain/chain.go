// Package chain reads objects, events and transactions from the ledger node.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the object id is well formed but the ledger holds no such object.
	ErrNotFound = errors.New("object not found")

	// ErrTransport wraps every failure to reach the node or to understand its reply.
	ErrTransport = errors.New("ledger transport error")
)

// Object is a raw ledger object. Fields holds the Move struct fields as JSON.
type Object struct {
	ID         string
	Type       string
	Version    string
	PreviousTx string
	Fields     json.RawMessage
}

// EventCursor marks a position in the event stream.
type EventCursor struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// EventQuery selects events either by full type name or by package and module.
type EventQuery struct {
	EventType  string
	Package    string
	Module     string
	Limit      int
	Descending bool
	Cursor     *EventCursor
}

// Event is one emitted ledger event.
type Event struct {
	Type      string
	Payload   json.RawMessage
	TxDigest  string
	Seq       string
	Sender    string
	Timestamp time.Time
}

// EventPage is one page of an event query.
type EventPage struct {
	Events     []Event
	NextCursor *EventCursor
	HasNext    bool
}

// CreatedObject is an object created by a transaction.
type CreatedObject struct {
	Type string
	ID   string
}

// Transaction lists the objects created by a transaction.
type Transaction struct {
	Digest  string
	Created []CreatedObject
}

// Reader defines the read-only contract implemented by ledger backends.
type Reader interface {
	GetObject(ctx context.Context, id string) (Object, error)
	QueryEvents(ctx context.Context, q EventQuery) (EventPage, error)
	GetTransaction(ctx context.Context, digest string) (Transaction, error)
	GetOwnedObjects(ctx context.Context, owner, structType string) ([]string, error)
}

// TypeName returns the last path segment of a fully qualified Move type,
// without generic arguments: "0x2::invoice::Escrow<T>" becomes "Escrow".
func TypeName(full string) string {
	if i := strings.IndexByte(full, '<'); i >= 0 {
		full = full[:i]
	}
	if i := strings.LastIndex(full, "::"); i >= 0 {
		return full[i+2:]
	}
	return full
}

package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type inMemoryReader struct {
	mu           sync.RWMutex
	objects      map[string]Object
	events       []Event
	transactions map[string]Transaction
	owned        map[string][]ownedEntry

	objectErrs map[string]error
	eventsErr  error
	txErrs     map[string]error

	objectReads  map[string]int
	eventQueries int
}

type ownedEntry struct {
	structType string
	id         string
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and local development without a node.
func NewInMemory() Reader {
	return &inMemoryReader{
		objects:      make(map[string]Object),
		transactions: make(map[string]Transaction),
		owned:        make(map[string][]ownedEntry),
		objectErrs:   make(map[string]error),
		txErrs:       make(map[string]error),
		objectReads:  make(map[string]int),
	}
}

func (r *inMemoryReader) GetObject(_ context.Context, id string) (Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objectReads[id]++
	if err, ok := r.objectErrs[id]; ok {
		return Object{}, err
	}
	obj, ok := r.objects[id]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return obj, nil
}

func (r *inMemoryReader) QueryEvents(_ context.Context, q EventQuery) (EventPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventQueries++
	if r.eventsErr != nil {
		return EventPage{}, r.eventsErr
	}

	var prefix string
	switch {
	case q.EventType != "":
	case q.Package != "" && q.Module != "":
		prefix = q.Package + "::" + q.Module + "::"
	default:
		return EventPage{}, fmt.Errorf("event query needs a type or a package and module")
	}

	matched := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if q.EventType != "" && ev.Type != q.EventType {
			continue
		}
		if prefix != "" && !strings.HasPrefix(ev.Type, prefix) {
			continue
		}
		matched = append(matched, ev)
	}
	if q.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := 0
	if q.Cursor != nil {
		for i, ev := range matched {
			if ev.TxDigest == q.Cursor.TxDigest && ev.Seq == q.Cursor.EventSeq {
				start = i + 1
				break
			}
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := EventPage{Events: append([]Event(nil), matched[start:end]...)}
	if end < len(matched) && end > start {
		last := matched[end-1]
		page.NextCursor = &EventCursor{TxDigest: last.TxDigest, EventSeq: last.Seq}
		page.HasNext = true
	}
	return page, nil
}

func (r *inMemoryReader) GetTransaction(_ context.Context, digest string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err, ok := r.txErrs[digest]; ok {
		return Transaction{}, err
	}
	tx, ok := r.transactions[digest]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: transaction %s", ErrNotFound, digest)
	}
	return tx, nil
}

func (r *inMemoryReader) GetOwnedObjects(_ context.Context, owner, structType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, entry := range r.owned[owner] {
		if entry.structType == structType {
			ids = append(ids, entry.id)
		}
	}
	return ids, nil
}

func (r *inMemoryReader) appendEvent(ev Event) {
	if ev.Seq == "" {
		ev.Seq = strconv.Itoa(len(r.events))
	}
	r.events = append(r.events, ev)
}

package chain

import "encoding/json"

// Fields marshals v for use as Object.Fields or Event.Payload in seeded ledgers.
func Fields(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// PutObject seeds an object when using the in-memory reader.
func PutObject(r Reader, obj Object) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.objects[obj.ID] = obj
		delete(mem.objectErrs, obj.ID)
	}
}

// DeleteObject removes a seeded object.
func DeleteObject(r Reader, id string) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		delete(mem.objects, id)
	}
}

// AppendEvent appends events to the in-memory stream in ledger order.
func AppendEvent(r Reader, events ...Event) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		for _, ev := range events {
			mem.appendEvent(ev)
		}
	}
}

// PutTransaction seeds a transaction and its created objects.
func PutTransaction(r Reader, tx Transaction) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.transactions[tx.Digest] = tx
	}
}

// PutOwned records that owner holds an object of structType.
func PutOwned(r Reader, owner, structType, id string) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.owned[owner] = append(mem.owned[owner], ownedEntry{structType: structType, id: id})
	}
}

// FailObject makes every read of id return err.
func FailObject(r Reader, id string, err error) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.objectErrs[id] = err
	}
}

// FailEvents makes every event query return err. A nil err clears the failure.
func FailEvents(r Reader, err error) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.eventsErr = err
	}
}

// FailTransaction makes reads of digest return err.
func FailTransaction(r Reader, digest string, err error) {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.txErrs[digest] = err
	}
}

// ObjectReads reports how many times id was read.
func ObjectReads(r Reader, id string) int {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		return mem.objectReads[id]
	}
	return 0
}

// EventQueries reports how many event queries were issued.
func EventQueries(r Reader) int {
	if mem, ok := r.(*inMemoryReader); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		return mem.eventQueries
	}
	return 0
}

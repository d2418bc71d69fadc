package pagedmap

// Txn buffers a sequence of Put/Remove calls against a Map so they can be
// undone as a group. It is not a snapshot-isolated transaction: this
// module has no MVCC layer underneath it, so Txn.Put/Remove apply
// immediately to the Map (each becomes its own durable WAL record), and
// Rollback undoes them by re-applying their captured pre-images as new,
// higher-sequence writes rather than reverting storage bytes in place —
// the natural shape of "undo" on an LSM-style structure where nothing is
// overwritten. Txn relies on the caller (the engine's single-writer gate)
// to serialize all mutating calls for its lifetime; it does not itself
// lock out concurrent writers.
type Txn struct {
	m    *Map
	undo []undoOp
}

type undoOp struct {
	key      []byte
	hadValue bool
	oldValue []byte
}

// BeginTxn starts a new transaction scope against m.
func (m *Map) BeginTxn() *Txn {
	return &Txn{m: m}
}

// Put records the key's previous state for Rollback, then applies value.
func (t *Txn) Put(key, value []byte) error {
	old, found, err := t.m.Get(key)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undoOp{key: key, hadValue: found, oldValue: old})
	return t.m.Put(key, value)
}

// Remove records the key's previous state for Rollback, then tombstones
// it. A key that was already absent needs no undo entry.
func (t *Txn) Remove(key []byte) error {
	old, found, err := t.m.Get(key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	t.undo = append(t.undo, undoOp{key: key, hadValue: true, oldValue: old})
	return t.m.Remove(key)
}

// Commit makes every write in the transaction durable and discards the
// undo log; Rollback is no longer possible afterward.
func (t *Txn) Commit() error {
	t.undo = nil
	return t.m.Commit()
}

// Rollback undoes every Put/Remove issued through this Txn, most recent
// first, by re-applying each key's pre-transaction state.
func (t *Txn) Rollback() error {
	for i := len(t.undo) - 1; i >= 0; i-- {
		op := t.undo[i]
		var err error
		if op.hadValue {
			err = t.m.Put(op.key, op.oldValue)
		} else {
			err = t.m.Remove(op.key)
		}
		if err != nil {
			return err
		}
	}
	t.undo = nil
	return nil
}

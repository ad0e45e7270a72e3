package domain

import "fmt"

// StorageFault wraps an I/O failure against the durable store. The tracker and
// cache convert it into their documented fail-secure return values; it is
// surfaced alongside them so callers can distinguish "denied" from "storage
// is broken" without re-deriving that from logs.
type StorageFault struct {
	Op  string
	Key string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault during %s on %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// CorruptRecord indicates a persisted value failed to deserialize. Read paths
// treat the record as absent; maintenance sweeps remove it.
type CorruptRecord struct {
	Key string
	Err error
}

func (e *CorruptRecord) Error() string {
	return fmt.Sprintf("corrupt record at %q: %v", e.Key, e.Err)
}

func (e *CorruptRecord) Unwrap() error { return e.Err }

// ApplyFailure reports that the remote apply rejected a sync operation.
type ApplyFailure struct {
	Kind string
	ID   string
	Err  error
}

func (e *ApplyFailure) Error() string {
	return fmt.Sprintf("apply %s operation %s: %v", e.Kind, e.ID, e.Err)
}

func (e *ApplyFailure) Unwrap() error { return e.Err }

// RetryExhausted records the permanent drop of a sync operation after its
// retry budget ran out.
type RetryExhausted struct {
	Kind      string
	ID        string
	Attempts  int
	LastError string
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("%s operation %s dropped after %d attempts: %s", e.Kind, e.ID, e.Attempts, e.LastError)
}

package flatshelf

import "fmt"

// Backend selects the embedded key-value store holding flat entries.
type Backend int

const (
	// BackendBolt keeps flat entries in a single Bolt file.
	BackendBolt Backend = iota
	// BackendBadger keeps flat entries in a Badger directory.
	BackendBadger
	// BackendMemory keeps flat entries in memory; nothing is persisted.
	BackendMemory
)

func (b Backend) String() string {
	switch b {
	case BackendBolt:
		return "bolt"
	case BackendBadger:
		return "badger"
	case BackendMemory:
		return "memory"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend is the inverse of Backend.String.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "bolt", "":
		return BackendBolt, nil
	case "badger":
		return BackendBadger, nil
	case "memory", "mem":
		return BackendMemory, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

// flatStore is the associative store holding one entry per flat key. Values
// are opaque encoded bytes. Implementations are not required to be safe for
// concurrent use.
type flatStore interface {
	// Get returns a copy of the value, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	Put(key string, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	Has(key string) (bool, error)

	// ForEach calls f for every entry in key order. Returning an error from f
	// stops the iteration and returns that error.
	ForEach(f func(key string, value []byte) error) error

	// Clear removes every entry.
	Clear() error

	// Sync flushes pending writes to durable storage.
	Sync() error

	Close() error
}

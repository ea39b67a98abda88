package flatshelf

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
)

// Store is a persistent nested mapping. Only leaf values are stored, each
// under its own flat key; the shape of the document lives in the key index,
// which is loaded on Open and written back by Sync and Close.
//
// A Store must be used by one goroutine at a time.
type Store struct {
	path      string
	indexPath string
	flat      flatStore
	idx       *keyIndex
	opt       Options
	logger    *slog.Logger
	closed    bool

	lastSnapshotSize int
}

type Options struct {
	Backend     Backend
	Compression Compression

	// SyncWrites makes every flat write durable immediately. Otherwise writes
	// are flushed by Sync and Close.
	SyncWrites bool

	// RecoverIndex rebuilds the key index from the flat entries when the
	// snapshot is missing or unreadable, instead of starting empty or failing.
	RecoverIndex bool

	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// Open opens or creates the store whose data lives at path. The key index
// snapshot is kept next to it (see IndexPath). The memory backend ignores
// path.
func Open(path string, opt Options) (*Store, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		opt:    opt,
		logger: logger,
	}

	var err error
	switch opt.Backend {
	case BackendBolt:
		s.flat, err = openBoltStorage(path, opt)
	case BackendBadger:
		s.flat, err = openBadgerStorage(path, opt, logger)
	case BackendMemory:
		s.flat = newMemStorage()
	default:
		err = fmt.Errorf("unsupported backend %v", opt.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("flatshelf: %w", err)
	}

	if opt.Backend == BackendMemory {
		s.idx = newKeyIndex()
		return s, nil
	}

	s.indexPath = snapshotPath(path)
	s.idx, err = readSnapshotFile(s.indexPath)
	if err != nil {
		if !opt.RecoverIndex {
			s.flat.Close()
			return nil, fmt.Errorf("flatshelf: loading index: %w", err)
		}
		logger.Warn("flatshelf: index snapshot unreadable, rebuilding", "path", s.indexPath, "err", err)
	}
	if s.idx == nil {
		if opt.RecoverIndex {
			err = s.Rebuild()
			if err != nil {
				s.flat.Close()
				return nil, fmt.Errorf("flatshelf: rebuilding index: %w", err)
			}
		} else {
			s.idx = newKeyIndex()
		}
	}
	if opt.Verbose {
		c := s.idx.counts()
		logger.Info("flatshelf: opened", "path", path, "backend", opt.Backend, "mappings", c.Interiors, "leaves", c.Leaves)
	}
	return s, nil
}

// With opens the store, passes it to f and closes it on every exit path,
// including a panic inside f. Errors from f and Close are both reported.
func With(path string, opt Options, f func(s *Store) error) (err error) {
	s, err := Open(path, opt)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return f(s)
}

func (s *Store) Path() string {
	return s.path
}

// IndexPath is the file holding the key index snapshot: the data path with
// its ".db" suffix replaced by ".map.db".
func (s *Store) IndexPath() string {
	return s.indexPath
}

// Root returns the proxy of the top-level mapping.
func (s *Store) Root() *Dict {
	return &Dict{binding{s: s, h: s.idx.handle(rootID)}}
}

func (s *Store) Get(key string) (any, error) {
	return s.getNode(rootID, nil, "Get", key)
}

// GetDefault is like Get, but returns def when the key does not exist,
// including when a path segment names a leaf rather than a mapping.
func (s *Store) GetDefault(key string, def any) (any, error) {
	return orDefault(s.Get(key))(def)
}

// Set replaces whatever is stored under key with value. Missing intermediate
// mappings are created.
func (s *Store) Set(key string, value any) error {
	return s.setNode(rootID, nil, "Set", key, value)
}

func (s *Store) Contains(key string) (bool, error) {
	return s.containsNode(rootID, nil, key)
}

// Pop removes key and returns its fully materialized value.
func (s *Store) Pop(key string) (any, error) {
	return s.popNode(rootID, nil, "Pop", key)
}

func (s *Store) PopDefault(key string, def any) (any, error) {
	return orDefault(s.Pop(key))(def)
}

// Delete is Pop without materializing the value.
func (s *Store) Delete(key string) error {
	return s.deleteNode(rootID, nil, "Delete", key)
}

// PopItem removes the most recently inserted top-level key.
func (s *Store) PopItem() (string, any, error) {
	return s.popItemNode(rootID, nil)
}

func (s *Store) SetDefault(key string, def any) (any, error) {
	return s.setDefaultNode(rootID, nil, key, def)
}

// Update sets every entry of m, in sorted key order.
func (s *Store) Update(m map[string]any) error {
	return s.updateNode(rootID, nil, m)
}

// UpdateFrom sets every pair yielded by seq, in order.
func (s *Store) UpdateFrom(seq iter.Seq2[string, any]) error {
	return s.updateFromNode(rootID, nil, seq)
}

// Keys yields top-level keys in insertion order.
func (s *Store) Keys() iter.Seq[string] {
	return s.Root().Keys()
}

func (s *Store) Values() iter.Seq[any] {
	return s.Root().Values()
}

func (s *Store) Items() iter.Seq2[string, any] {
	return s.Root().Items()
}

func (s *Store) Len() int {
	if s.closed {
		return 0
	}
	return len(s.idx.children(rootID))
}

func (s *Store) ToDict() (map[string]any, error) {
	return s.Root().ToDict()
}

// Clear removes everything from both the flat store and the index.
func (s *Store) Clear() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.flat.Clear(); err != nil {
		return fmt.Errorf("flatshelf: clear: %w", err)
	}
	s.idx.reset()
	if s.opt.Verbose {
		s.logger.Debug("flatshelf: cleared", "path", s.path)
	}
	return nil
}

// Sync flushes the flat store and writes the key index snapshot.
func (s *Store) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.flat.Sync(); err != nil {
		return fmt.Errorf("flatshelf: sync: %w", err)
	}
	if s.indexPath == "" {
		return nil
	}
	data, err := encodeSnapshot(s.idx, s.opt.Compression)
	if err != nil {
		return fmt.Errorf("flatshelf: snapshot: %w", err)
	}
	if err := writeSnapshotFile(s.indexPath, data); err != nil {
		return fmt.Errorf("flatshelf: %w", err)
	}
	s.lastSnapshotSize = len(data)
	if s.opt.Verbose {
		s.logger.Debug("flatshelf: synced", "path", s.path, "snapshot_bytes", len(data))
	}
	return nil
}

// Close syncs and releases the store. Closing a closed store does nothing.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	err := s.Sync()
	s.closed = true
	if cerr := s.flat.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("flatshelf: close: %w", cerr))
	}
	return err
}

// orDefault treats a missing key, a missing intermediate mapping and a
// scalar in place of an intermediate mapping all as absence.
func orDefault(v any, err error) func(def any) (any, error) {
	return func(def any) (any, error) {
		if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotInterior) {
			return def, nil
		}
		return v, err
	}
}

// sortedKeys returns the keys of m in ascending order. Go maps carry no
// insertion order, so nested mappings are added to the index sorted.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package flatshelf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

type badgerStorage struct {
	db *badger.DB
}

// badgerLogger routes Badger's own logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openBadgerStorage opens a Badger database in the directory dir, creating it
// if necessary.
func openBadgerStorage(dir string, opt Options, logger *slog.Logger) (flatStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("badger: create directory %s: %w", dir, err)
	}
	bopt := badger.DefaultOptions(dir).
		WithSyncWrites(opt.SyncWrites).
		WithNumVersionsToKeep(1)
	if opt.Verbose {
		bopt = bopt.WithLogger(&badgerLogger{logger: logger})
	} else {
		bopt = bopt.WithLogger(nil)
	}
	if opt.IsTesting {
		// max batch size is derived from the memtable size and must stay
		// above the value threshold
		bopt = bopt.WithMemTableSize(4 << 20).WithValueThreshold(1 << 10).WithValueLogFileSize(16 << 20)
	}
	db, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}
	return &badgerStorage{db: db}, nil
}

func (s *badgerStorage) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (s *badgerStorage) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *badgerStorage) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *badgerStorage) Has(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *badgerStorage) ForEach(f func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := f(string(item.Key()), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *badgerStorage) Clear() error {
	return s.db.DropAll()
}

func (s *badgerStorage) Sync() error {
	return s.db.Sync()
}

func (s *badgerStorage) Close() error {
	return s.db.Close()
}

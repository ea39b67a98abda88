package flatshelf

import (
	"bytes"
	"fmt"
	"slices"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

var flatBucket = []byte("flat")

type boltStorage struct {
	bdb *bbolt.DB
}

func openBoltStorage(path string, opt Options) (flatStore, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 64 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	// Writes are flushed by Sync unless every write must be durable.
	bopt.NoSync = !opt.SyncWrites

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(flatBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltStorage{bdb: bdb}, nil
}

func (s *boltStorage) Get(key string) ([]byte, error) {
	var value []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		v := btx.Bucket(flatBucket).Get(unsafeBytesFromString(key))
		if v == nil {
			return ErrKeyNotFound
		}
		value = slices.Clone(v)
		return nil
	})
	return value, err
}

func (s *boltStorage) Put(key string, value []byte) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(flatBucket).Put([]byte(key), value)
	})
}

func (s *boltStorage) Delete(key string) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(flatBucket).Delete([]byte(key))
	})
}

func (s *boltStorage) Has(key string) (bool, error) {
	var found bool
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		found = btx.Bucket(flatBucket).Get(unsafeBytesFromString(key)) != nil
		return nil
	})
	return found, err
}

func (s *boltStorage) ForEach(f func(key string, value []byte) error) error {
	return s.bdb.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(flatBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := f(string(k), bytes.Clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStorage) Clear() error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		err := btx.DeleteBucket(flatBucket)
		if err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err = btx.CreateBucket(flatBucket)
		return err
	})
}

func (s *boltStorage) Sync() error {
	return s.bdb.Sync()
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

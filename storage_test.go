package flatshelf

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
)

func openTestStorage(t *testing.T, backend Backend) flatStore {
	t.Helper()
	opt := Options{IsTesting: true}
	var fs flatStore
	var err error
	switch backend {
	case BackendBolt:
		fs, err = openBoltStorage(filepath.Join(t.TempDir(), "flat.db"), opt)
	case BackendBadger:
		fs, err = openBadgerStorage(filepath.Join(t.TempDir(), "flat.db"), opt, slog.Default())
	case BackendMemory:
		fs = newMemStorage()
	}
	ensure(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFlatStore_Contract(t *testing.T) {
	for _, b := range allBackends {
		t.Run(b.String(), func(t *testing.T) {
			fs := openTestStorage(t, b)

			_, err := fs.Get("a")
			isErr(t, err, ErrKeyNotFound)
			deepEqual(t, must(fs.Has("a")), false)
			ensure(t, fs.Delete("a"))

			ensure(t, fs.Put("b.x", []byte{2}))
			ensure(t, fs.Put("a", []byte{1}))
			ensure(t, fs.Put("c", []byte{}))
			ensure(t, fs.Put("b", []byte{3}))

			deepEqual(t, must(fs.Get("a")), []byte{1})
			deepEqual(t, must(fs.Has("c")), true)

			v := must(fs.Get("b"))
			v[0] = 99
			deepEqual(t, must(fs.Get("b")), []byte{3})

			ensure(t, fs.Put("a", []byte{4, 5}))
			deepEqual(t, must(fs.Get("a")), []byte{4, 5})

			var keys []string
			ensure(t, fs.ForEach(func(key string, value []byte) error {
				keys = append(keys, key)
				return nil
			}))
			deepEqual(t, keys, []string{"a", "b", "b.x", "c"})

			stop := errors.New("stop")
			keys = nil
			err = fs.ForEach(func(key string, value []byte) error {
				keys = append(keys, key)
				return stop
			})
			isErr(t, err, stop)
			deepEqual(t, keys, []string{"a"})

			ensure(t, fs.Delete("b"))
			deepEqual(t, must(fs.Has("b")), false)
			deepEqual(t, must(fs.Has("b.x")), true)

			ensure(t, fs.Sync())
			ensure(t, fs.Clear())
			deepEqual(t, must(fs.Has("a")), false)
			ensure(t, fs.Put("z", []byte{1}))
			deepEqual(t, must(fs.Get("z")), []byte{1})
		})
	}
}

func TestFlatStore_DeleteDuringForEach(t *testing.T) {
	fs := openTestStorage(t, BackendMemory)
	for _, k := range []string{"a", "b", "c"} {
		ensure(t, fs.Put(k, []byte(k)))
	}
	var seen []string
	ensure(t, fs.ForEach(func(key string, value []byte) error {
		seen = append(seen, key)
		return fs.Delete(key)
	}))
	deepEqual(t, seen, []string{"a", "b", "c"})
	deepEqual(t, must(fs.Has("b")), false)
}

func TestMemStorage_Closed(t *testing.T) {
	fs := newMemStorage()
	ensure(t, fs.Put("a", []byte{1}))
	ensure(t, fs.Close())
	_, err := fs.Get("a")
	isErr(t, err, ErrClosed)
	isErr(t, fs.Put("a", nil), ErrClosed)
}

func TestBadgerStorage_TestingOptions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flat.db")
	opt := Options{IsTesting: true}
	fs, err := openBadgerStorage(dir, opt, slog.Default())
	ensure(t, err)

	big := make([]byte, 64<<10)
	for i := range big {
		big[i] = byte(i)
	}
	ensure(t, fs.Put("big", big))
	ensure(t, fs.Put("small", []byte{1}))
	ensure(t, fs.Close())

	fs, err = openBadgerStorage(dir, opt, slog.Default())
	ensure(t, err)
	defer fs.Close()
	deepEqual(t, must(fs.Get("big")), big)
	deepEqual(t, must(fs.Get("small")), []byte{1})
}

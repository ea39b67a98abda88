package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/flatshelf"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), uuid.NewString()+".db")
}

func TestSetGetPop(t *testing.T) {
	for _, backend := range []string{"bolt", "badger"} {
		t.Run(backend, func(t *testing.T) {
			db := tempDB(t)
			flags := []string{"--db", db, "--backend", backend}

			_, err := run(t, append(flags, "set", "auth", `{"password": "1234", "tags": [a, b]}`)...)
			require.NoError(t, err)
			_, err = run(t, append(flags, "set", "name", "Bob")...)
			require.NoError(t, err)

			out, err := run(t, append(flags, "get", "auth.password")...)
			require.NoError(t, err)
			assert.Equal(t, "\"1234\"\n", out)

			out, err = run(t, append(flags, "get", "-f", "yaml", "auth")...)
			require.NoError(t, err)
			assert.Contains(t, out, "password: \"1234\"\n")
			assert.Contains(t, out, "- b\n")

			out, err = run(t, append(flags, "keys")...)
			require.NoError(t, err)
			assert.Equal(t, "auth\nname\n", out)

			out, err = run(t, append(flags, "keys", "auth")...)
			require.NoError(t, err)
			assert.Equal(t, "password\ntags\n", out)

			out, err = run(t, append(flags, "pop", "name")...)
			require.NoError(t, err)
			assert.Equal(t, "\"Bob\"\n", out)

			_, err = run(t, append(flags, "get", "name")...)
			require.ErrorIs(t, err, flatshelf.ErrKeyNotFound)
		})
	}
}

func TestSetAsSet(t *testing.T) {
	db := tempDB(t)
	_, err := run(t, "--db", db, "set", "--set", "s", "[1, 2, 2, 3]")
	require.NoError(t, err)

	err = flatshelf.With(db, flatshelf.Options{}, func(s *flatshelf.Store) error {
		v, err := s.Get("s")
		if err != nil {
			return err
		}
		n, ok := v.(*flatshelf.SetNode)
		require.True(t, ok, "got %T", v)
		assert.True(t, n.Equal(flatshelf.NewSet(1, 2, 3)))
		return nil
	})
	require.NoError(t, err)

	_, err = run(t, "--db", db, "set", "--set", "s", "scalar")
	require.Error(t, err)
}

func TestDumpFlatStats(t *testing.T) {
	db := tempDB(t)
	_, err := run(t, "--db", db, "set", "a.b", "1")
	require.NoError(t, err)
	_, err = run(t, "--db", db, "set", "e", "{}")
	require.NoError(t, err)

	out, err := run(t, "--db", db, "dump")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": 1}, "e": {}}`, out)

	out, err = run(t, "--db", db, "dump", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "a:\n  b: 1\n")

	out, err = run(t, "--db", db, "dump", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "  b: (scalar) 1\n")

	out, err = run(t, "--db", db, "flat")
	require.NoError(t, err)
	assert.Contains(t, out, "a.b (scalar) 1\n")
	assert.Contains(t, out, "e (map) {}\n")

	out, err = run(t, "--db", db, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "leaves: 1\n")
	assert.Contains(t, out, "empty_mappings: 1\n")
	assert.Contains(t, out, "flat_entries: 2\n")

	_, err = run(t, "--db", db, "dump", "--format", "xml")
	require.Error(t, err)
}

func TestRebuildCommand(t *testing.T) {
	db := tempDB(t)
	_, err := run(t, "--db", db, "set", "x.y", "[1, 2]")
	require.NoError(t, err)
	_, err = run(t, "--db", db, "rebuild")
	require.NoError(t, err)
	out, err := run(t, "--db", db, "get", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"y": [1, 2]}`, out)
}

func TestErrors(t *testing.T) {
	db := tempDB(t)
	_, err := run(t, "--db", db, "--backend", "sqlite", "keys")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "sqlite"))

	_, err = run(t, "--db", db, "set", "a", "1")
	require.NoError(t, err)
	_, err = run(t, "--db", db, "keys", "a")
	require.ErrorIs(t, err, flatshelf.ErrNotInterior)

	_, err = run(t, "--db", db, "get")
	require.Error(t, err)
	_, err = run(t, "--db", db, "set", "a", "[unclosed")
	require.Error(t, err)
}

func TestParseValue(t *testing.T) {
	v, err := parseValue("42", false)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = parseValue(`{"a": [true, null, 1.5]}`, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{true, nil, 1.5}}, v)

	v, err = parseValue("plain text", false)
	require.NoError(t, err)
	assert.Equal(t, "plain text", v)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLoadsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\nthird\n"), 0o600))

	src, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, 3, src.Len())
	assert.Equal(t, []byte("first"), src.Message(0).Payload())
	assert.Equal(t, []byte("third"), src.Message(2).Payload())
	assert.NotEmpty(t, src.Epoch())
}

func TestOpenRecordsConsumedOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	content := []byte("first\nsecond\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	src, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), src.Offset())
	assert.Zero(t, New().Offset())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.log"))
	assert.Error(t, err)
}

func TestMessageOutOfRange(t *testing.T) {
	src := New()
	assert.Nil(t, src.Message(-1))
	assert.Nil(t, src.Message(0))
}

func TestAppendReturnsFirstNewIndex(t *testing.T) {
	src := New()
	first := src.Append([][]byte{[]byte("a"), []byte("b")})
	assert.Equal(t, 0, first)

	first = src.Append([][]byte{[]byte("c")})
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, src.Len())
	assert.Equal(t, []byte("c"), src.Message(2).Payload())
}

func TestEpochsAreUnique(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a.Epoch(), b.Epoch())
}

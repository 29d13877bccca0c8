// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package source provides the host-owned log source: an ordered set of
// records for one file epoch, loadable from a file and extendable while
// following a live log.
package source

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	sdk "github.com/loglens/loglens/pkg/plugin"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newEpoch generates a ULID identifying one file epoch.
func newEpoch() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Source is an in-memory log for one file epoch. It implements
// sdk.Source. Appends and reads may come from different goroutines (the
// follower appends while the host streams), so access is guarded.
type Source struct {
	epoch string

	// offset is the byte position in the backing file up to which Open
	// consumed records. A follower resumes reading from here, so records
	// appended after Open are never skipped.
	offset int64

	mu   sync.RWMutex
	msgs []*sdk.Message
}

// New creates an empty source with a fresh epoch.
func New() *Source {
	return &Source{epoch: newEpoch()}
}

// Open loads a line-oriented log file into a new source. Each line
// becomes one message; record timestamps are assigned at load time.
func Open(path string) (*Source, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from host configuration
	if err != nil {
		return nil, oops.In("source").With("path", path).Wrap(err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	s := New()
	data, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, oops.In("source").With("path", path).Hint("read failed").Wrap(err)
	}
	s.offset = int64(len(data))

	now := time.Now()
	for len(data) > 0 {
		line := data
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			line = data[:nl]
			data = data[nl+1:]
		} else {
			data = nil
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		s.msgs = append(s.msgs, sdk.NewMessage(len(s.msgs), now, payload))
	}

	return s, nil
}

// Offset is the byte position in the backing file up to which records
// have been loaded by Open. Zero for sources built with New.
func (s *Source) Offset() int64 { return s.offset }

// Epoch identifies this source's file epoch.
func (s *Source) Epoch() string { return s.epoch }

// Len is the number of messages currently in the log.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Message returns the message at index, or nil if out of range.
func (s *Source) Message(index int) *sdk.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.msgs) {
		return nil
	}
	return s.msgs[index]
}

// Append adds one batch of records and returns the index of the first
// appended message.
func (s *Source) Append(payloads [][]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := len(s.msgs)
	now := time.Now()
	for _, p := range payloads {
		s.msgs = append(s.msgs, sdk.NewMessage(len(s.msgs), now, p))
	}
	return first
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// BatchFunc is called once per coalesced batch of appended records with
// the index of the first new message.
type BatchFunc func(from int)

// Follower tails a log file and appends new records to its source. Write
// events are coalesced over a debounce window so one burst of log
// activity becomes one update round. A rotated or replaced file is
// reopened from the start with fibonacci backoff.
type Follower struct {
	src      *Source
	path     string
	interval time.Duration
	onBatch  BatchFunc

	watcher  *fsnotify.Watcher
	offset   int64
	partial  []byte // trailing bytes not yet terminated by a newline
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFollower creates a follower for path appending into src. The caller
// loads the pre-existing content first; following resumes from the byte
// offset the source consumed, so records appended between the load and
// the start of the watch are still delivered.
func NewFollower(src *Source, path string, interval time.Duration, onBatch BatchFunc) (*Follower, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	if _, err := os.Stat(path); err != nil {
		return nil, oops.In("source").With("path", path).Wrap(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.In("source").Hint("failed to create watcher").Wrap(err)
	}

	return &Follower{
		src:      src,
		path:     path,
		interval: interval,
		onBatch:  onBatch,
		watcher:  watcher,
		offset:   src.Offset(),
		done:     make(chan struct{}),
	}, nil
}

// Start begins following. It returns once the watch is installed; record
// delivery happens on the follower's own goroutine until Stop or ctx
// cancellation.
func (f *Follower) Start(ctx context.Context) error {
	if err := f.watcher.Add(f.path); err != nil {
		return oops.In("source").With("path", f.path).Hint("failed to watch file").Wrap(err)
	}

	// Records written before the watch was installed produce no event;
	// pick them up now.
	f.drain()

	f.wg.Add(1)
	go f.loop(ctx)

	slog.Info("following log file", "path", f.path, "offset", f.offset)
	return nil
}

// Stop ends following and waits for the event loop to exit.
func (f *Follower) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})
	f.wg.Wait()

	if err := f.watcher.Close(); err != nil {
		slog.Warn("failed to close watcher", "error", err)
	}
}

func (f *Follower) loop(ctx context.Context) {
	defer f.wg.Done()

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Write):
				// Coalesce bursts into one batch per interval.
				if pending == nil {
					pending = time.NewTimer(f.interval)
					pendingC = pending.C
				}
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				if err := f.reopen(ctx); err != nil {
					slog.Error("failed to reopen rotated log", "path", f.path, "error", err)
					return
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "path", f.path, "error", err)
		case <-pendingC:
			pending = nil
			pendingC = nil
			f.drain()
		}
	}
}

// drain reads records appended since the last offset and delivers them as
// one batch. A trailing line without a newline stays buffered until the
// writer completes it.
func (f *Follower) drain() {
	file, err := os.Open(f.path) //nolint:gosec // path comes from host configuration
	if err != nil {
		slog.Warn("failed to open log for draining", "path", f.path, "error", err)
		return
	}
	defer file.Close() //nolint:errcheck // read-only file

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		slog.Warn("failed to seek log", "path", f.path, "error", err)
		return
	}

	data, err := io.ReadAll(bufio.NewReader(file))
	if err != nil {
		slog.Warn("failed to read appended records", "path", f.path, "error", err)
		return
	}
	f.offset += int64(len(data))

	buf := append(f.partial, data...)
	var payloads [][]byte
	for {
		nl := bytes.IndexByte(buf, '\n')
		if nl < 0 {
			break
		}
		line := make([]byte, nl)
		copy(line, buf[:nl])
		payloads = append(payloads, line)
		buf = buf[nl+1:]
	}
	f.partial = append([]byte(nil), buf...)

	if len(payloads) == 0 {
		return
	}

	from := f.src.Append(payloads)
	if f.onBatch != nil {
		f.onBatch(from)
	}
}

// reopen re-establishes the watch after rotation, retrying with backoff
// until the new file appears. Reading restarts from the beginning of the
// new file.
func (f *Follower) reopen(ctx context.Context) error {
	backoff := retry.WithMaxRetries(10, retry.NewFibonacci(50*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, statErr := os.Stat(f.path); statErr != nil {
			return retry.RetryableError(statErr)
		}
		if addErr := f.watcher.Add(f.path); addErr != nil {
			return retry.RetryableError(addErr)
		}
		return nil
	})
	if err != nil {
		return oops.In("source").With("path", f.path).Hint("log did not reappear after rotation").Wrap(err)
	}

	f.offset = 0
	f.partial = nil
	slog.Info("reopened rotated log", "path", f.path)
	f.drain()
	return nil
}

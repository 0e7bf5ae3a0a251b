// Package ledger implements the append-only JSON-lines audit log.
//
// Every entry is one JSON object terminated by '\n' and handed to the OS in
// a single write on an O_APPEND descriptor, so a failed append never leaves a
// partial line behind. The package offers no read path: consumers replay the
// file by splitting lines and decoding each one independently.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/metrics"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644

	timestampKey = "ts"
)

// Appender is the write side of the ledger used by the driver.
type Appender interface {
	Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)
	Path() string
}

// FileLedger appends entries to a local file. All appends are serialized
// through one mutex; a single FileLedger must be the only writer of its path.
type FileLedger struct {
	path     string
	sync     bool
	now      func() time.Time
	dirPerm  os.FileMode
	filePerm os.FileMode

	mu   sync.Mutex
	file *os.File
}

// Open creates missing parent directories and opens path for appending.
func Open(_ context.Context, path string, opts ...Option) (*FileLedger, error) {
	l := &FileLedger{
		path:     path,
		now:      time.Now,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(l)
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrIO)
	}
	if err := os.MkdirAll(filepath.Dir(path), l.dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create dir: %v", ErrIO, err)
	}

	flags := os.O_CREATE | os.O_APPEND | os.O_WRONLY
	if l.sync {
		flags |= os.O_SYNC
	}
	f, err := os.OpenFile(path, flags, l.filePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrIO, err)
	}
	l.file = f
	return l, nil
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string {
	return l.path
}

// Append stamps entry.TS with the current time, writes the entry as one line
// and returns the stamped entry.
func (l *FileLedger) Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.LedgerEntry{}, err
	}
	entry.TS = l.now().Unix()
	if err := l.write(entry); err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

// AppendFields writes an arbitrary payload mapping with a "ts" field added.
// The caller's map is not modified; a "ts" key it carries is overwritten.
func (l *FileLedger) AppendFields(ctx context.Context, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record[timestampKey] = l.now().Unix()
	return l.write(record)
}

func (l *FileLedger) write(record any) error {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	line, err := json.Marshal(record)
	if err != nil {
		metrics.RecordLedgerAppendError("serialization")
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		metrics.RecordLedgerAppendError("closed")
		return ErrClosed
	}
	if _, err := l.file.Write(line); err != nil {
		metrics.RecordLedgerAppendError("io")
		return fmt.Errorf("%w: append %s: %v", ErrIO, l.path, err)
	}
	metrics.RecordLedgerAppend()
	return nil
}

// Close releases the file handle. Further appends fail with ErrClosed.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}

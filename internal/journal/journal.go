// Package journal is the single-writer, append-only newline-delimited JSON
// log shared by the workspace store (issues, forum messages, events), the
// scheduled-run controller, the identity table, and the operator-message
// broker (spec §4.1, §4.3, §4.4).
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentctl/agentctl/internal/errkind"
)

// Log is a single append-only file. Every Append writes one line and
// flushes before returning; Open replays existing lines through decode to
// rebuild a caller-owned projection, treating any decode error as a fatal
// corrupt-log condition.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens path for appending, creating parent directories and the file
// itself if needed, replaying existing lines through decode first.
func Open(path string, decode func(line []byte) error) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errkind.Wrap(errkind.StorageIO, "create log directory", err)
	}
	if err := replay(path, decode); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errkind.Wrap(errkind.StorageIO, "open append log "+path, err)
	}
	return &Log{path: path, f: f}, nil
}

func replay(path string, decode func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errkind.Wrap(errkind.StorageIO, "open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			return errkind.Wrap(errkind.StorageIO, fmt.Sprintf("corrupt record at %s:%d", path, lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return errkind.Wrap(errkind.StorageIO, "read "+path, err)
	}
	return nil
}

// Append marshals v as one JSON line, writes it, and flushes to disk.
func (l *Log) Append(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return errkind.Wrap(errkind.InvalidInput, "marshal record", err)
	}
	data = append(data, '\n')

	if _, err := l.f.Write(data); err != nil {
		return errkind.Wrap(errkind.StorageIO, "append to "+l.path, err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// DecodeJSON unmarshals line into a fresh T.
func DecodeJSON[T any](line []byte) (T, error) {
	var v T
	err := json.Unmarshal(line, &v)
	return v, err
}

// MustJSON re-marshals v, panicking on failure — only safe right after a
// successful Append of the same value.
func MustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

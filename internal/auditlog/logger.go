// Package auditlog appends one JSON record per relayed request to a daily
// log file, rotating and compressing files that grow past a size bound.
package auditlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// Outcome values recorded per request.
const (
	OutcomeHit           = "hit"
	OutcomeMiss          = "miss"
	OutcomeAuthError     = "auth_error"
	OutcomeUpstreamError = "upstream_error"
)

// Record is one request/response exchange. Once appended it is never
// mutated.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	CacheKey  string          `json:"cache_key,omitempty"`
	Outcome   string          `json:"outcome"`
	Target    string          `json:"target,omitempty"`
	Status    int             `json:"status"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// Logger owns the current log file. All rotation logic lives here; callers
// only ever Append. The mutex serializes the size-check-then-write so
// concurrent appenders never interleave inside a record or race a rotation.
type Logger struct {
	dir          string
	maxBytes     int64
	maxBodyBytes int
	logger       *slog.Logger
	now          func() time.Time

	mu   sync.Mutex
	file *os.File
	date string
	size int64
	seq  map[string]int

	onRotate     func()
	compressions sync.WaitGroup
}

// OnRotate registers a callback fired after each rotation. Set before the
// first Append.
func (l *Logger) OnRotate(fn func()) { l.onRotate = fn }

func New(dir string, maxBytes int64, maxBodyBytes int, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Logger{
		dir:          dir,
		maxBytes:     maxBytes,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		now:          time.Now,
		seq:          make(map[string]int),
	}, nil
}

// Append writes one record to the current daily file, rotating first if the
// calendar date changed or the file would exceed the size bound. The record
// always lands whole in the newly current file.
func (l *Logger) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Request = l.truncate(rec.Request)
	rec.Response = l.truncate(rec.Response)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	date := l.now().Format(dateLayout)

	if l.file == nil || date != l.date || l.size+int64(len(line)) > l.maxBytes {
		if err := l.rotateLocked(date); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}

// rotateLocked closes the current file (if any), hands it to async
// compression under a date+sequence name, and opens the file for date.
// Callers hold l.mu.
func (l *Logger) rotateLocked(date string) error {
	if l.file != nil {
		name := l.file.Name()
		if err := l.file.Close(); err != nil {
			l.logger.Warn("failed to close log file", "file", name, "error", err)
		}
		l.file = nil

		if l.size > 0 {
			rotated := filepath.Join(l.dir, fmt.Sprintf("%s.%d.json", l.date, l.nextSeqLocked(l.date)))
			if err := os.Rename(name, rotated); err != nil {
				l.logger.Warn("failed to rename rotated log", "file", name, "error", err)
			} else {
				l.compressions.Add(1)
				go l.compress(rotated)
				if l.onRotate != nil {
					l.onRotate()
				}
			}
		}
	}

	path := filepath.Join(l.dir, date+".json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file %s: %w", path, err)
	}

	l.file = f
	l.date = date
	l.size = info.Size()
	return nil
}

// nextSeqLocked returns the next rotation sequence for a date, seeding the
// counter from files already on disk so restarts never overwrite a prior
// rotation.
func (l *Logger) nextSeqLocked(date string) int {
	if next, ok := l.seq[date]; ok {
		l.seq[date] = next + 1
		return next
	}

	max := 0
	matches, _ := filepath.Glob(filepath.Join(l.dir, date+".*.json*"))
	for _, m := range matches {
		var n int
		base := filepath.Base(m)
		if _, err := fmt.Sscanf(base, date+".%d.json", &n); err == nil && n > max {
			max = n
		}
	}
	l.seq[date] = max + 2
	return max + 1
}

// compress gzips a rotated file and removes the plain original. Failures
// leave the plain file in place; records are never lost to compression.
func (l *Logger) compress(path string) {
	defer l.compressions.Done()

	in, err := os.Open(path)
	if err != nil {
		l.logger.Warn("failed to open rotated log for compression", "file", path, "error", err)
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		l.logger.Warn("failed to create compressed log", "file", path, "error", err)
		return
	}

	gz, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		return
	}
	if _, err := io.Copy(gz, in); err != nil {
		l.logger.Warn("failed to compress rotated log", "file", path, "error", err)
		gz.Close()
		out.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := out.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}

	if err := os.Remove(path); err != nil {
		l.logger.Warn("failed to remove rotated log after compression", "file", path, "error", err)
		return
	}
	l.logger.Info("compressed rotated log", "file", path+".gz")
}

// Close flushes the current file and waits for in-flight compressions.
func (l *Logger) Close() error {
	l.mu.Lock()
	var err error
	if l.file != nil {
		err = l.file.Close()
		l.file = nil
	}
	l.mu.Unlock()

	l.compressions.Wait()
	return err
}

// truncate bounds a raw JSON payload. Oversized payloads are replaced by a
// JSON string holding the leading bytes, so the record itself stays valid.
func (l *Logger) truncate(raw json.RawMessage) json.RawMessage {
	if l.maxBodyBytes <= 0 || len(raw) <= l.maxBodyBytes {
		return raw
	}
	shortened, err := json.Marshal(string(raw[:l.maxBodyBytes]) + "...(truncated)")
	if err != nil {
		return nil
	}
	return shortened
}

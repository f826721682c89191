package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/sim/rules"
)

// JSONLZstdWriter appends one JSON document per line to an hourly rotated
// zstd file named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Push a complete block so a crash loses at most the current line.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EventJournal writes every engine lifecycle event it is handed to
// <dataDir>/events. Write failures are logged, never returned to the engine.
type EventJournal struct {
	w   *JSONLZstdWriter
	log logrus.FieldLogger

	mu      sync.Mutex
	written uint64
	failed  uint64
}

func NewEventJournal(dataDir string, l logrus.FieldLogger) *EventJournal {
	if l == nil {
		l = logging.Discard()
	}
	return &EventJournal{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events"),
		log: l,
	}
}

// OnEvent has the signature of an engine subscriber.
func (j *EventJournal) OnEvent(ev rules.Event) {
	if err := j.WriteRecord(ev.Record()); err != nil {
		j.log.WithFields(logrus.Fields{"seq": ev.Seq, "type": ev.Type}).Errorf("journal write: %v", err)
	}
}

func (j *EventJournal) WriteRecord(r rules.EventRecord) error {
	err := j.w.Write(r)
	j.mu.Lock()
	if err != nil {
		j.failed++
	} else {
		j.written++
	}
	j.mu.Unlock()
	return err
}

func (j *EventJournal) Stats() (written, failed uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written, j.failed
}

func (j *EventJournal) Dir() string  { return j.w.baseDir }
func (j *EventJournal) Close() error { return j.w.Close() }

package store

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// CSV is a headerless comma-separated log file, one line per record.
type CSV struct {
	path   string
	logger *zap.SugaredLogger

	// OnSkip, if set, is called for every malformed row ReadAll skips.
	OnSkip SkipFunc
}

// NewCSV creates a CSV store at path. The file is created on first Append.
func NewCSV(path string, logger *zap.SugaredLogger) *CSV {
	return &CSV{path: path, logger: logger}
}

// Path returns the log file location.
func (s *CSV) Path() string {
	return s.path
}

// Append opens the file for append, writes one line with a single write
// call and closes it again. Nothing is buffered between calls.
func (s *CSV) Append(rec logic.Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(formatRow(rec)); err != nil {
		return &LogWriteError{Target: s.path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &LogWriteError{Target: s.path, Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &LogWriteError{Target: s.path, Err: err}
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &LogWriteError{Target: s.path, Err: err}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return &LogWriteError{Target: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &LogWriteError{Target: s.path, Err: err}
	}
	return nil
}

// ReadAll returns every well-formed row in file order. A missing file is an
// empty history. An unterminated final line is a write still in flight and is
// left for the next read.
func (s *CSV) ReadAll() ([]logic.Record, error) {
	records := []logic.Record{}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line := 0
	for {
		raw, err := r.ReadString('\n')
		if err == io.EOF {
			if raw != "" && s.logger != nil {
				s.logger.Debugw("ignoring unterminated trailing row", "path", s.path, "bytes", len(raw))
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		line++

		text := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		rec, err := decodeLine(text)
		if err != nil {
			if line == 1 && strings.HasPrefix(text, Columns[0]+",") {
				// header row from an externally prepared file
				continue
			}
			s.skip(&MalformedRowError{Line: line, Raw: text, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CSV) skip(err *MalformedRowError) {
	if s.logger != nil {
		s.logger.Warnw("skipping malformed log row", "path", s.path, "line", err.Line, "err", err.Err)
	}
	if s.OnSkip != nil {
		s.OnSkip(err)
	}
}

func decodeLine(text string) (logic.Record, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	fields, err := cr.Read()
	if err != nil {
		return logic.Record{}, err
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return parseRow(fields)
}

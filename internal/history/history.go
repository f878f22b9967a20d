// Package history reloads the aeration log for historical views.
package history

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Set is the ordered sequence of logged records. It is rebuilt on every
// load and never cached.
type Set []logic.Record

// Reader is the read side of the log store.
type Reader interface {
	ReadAll() ([]logic.Record, error)
}

// Loader turns store reads into a Set that is safe to render.
type Loader struct {
	reader Reader
	logger *zap.SugaredLogger

	// OnError, if set, is called when a read fails.
	OnError func(err error)
}

// NewLoader creates a Loader over the given store.
func NewLoader(reader Reader, logger *zap.SugaredLogger) *Loader {
	return &Loader{reader: reader, logger: logger}
}

// Load reads the whole log, sorted by timestamp. A read failure degrades to
// an empty Set so the page shows "no data" instead of failing.
func (l *Loader) Load() Set {
	records, err := l.reader.ReadAll()
	if err != nil {
		if l.logger != nil {
			l.logger.Warnw("history unavailable", "err", err)
		}
		if l.OnError != nil {
			l.OnError(err)
		}
		return Set{}
	}

	s := Set(records)
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
	return s
}

// Tail returns the last n records, or the whole set when n <= 0.
func (s Set) Tail(n int) Set {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

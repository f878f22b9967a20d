package monitor

import (
	"errors"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Fanout forwards to several presenters. Every presenter is called even when
// an earlier one fails; the failures are joined.
type Fanout []Presenter

// NewFanout skips nil presenters.
func NewFanout(presenters ...Presenter) Fanout {
	f := make(Fanout, 0, len(presenters))
	for _, p := range presenters {
		if p != nil {
			f = append(f, p)
		}
	}
	return f
}

func (f Fanout) PublishLive(rec logic.Record) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishLive(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishHistory(set history.Set) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishHistory(set); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

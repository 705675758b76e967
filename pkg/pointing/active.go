package pointing

import (
	"errors"
	"sync/atomic"
)

// ErrNoModel is returned by Active when no model has been installed.
var ErrNoModel = errors.New("no pointing model loaded")

type modelRef struct {
	model Model
}

// Active holds the pointing model currently in use.
// Readers always observe either the previous or the new model in full.
type Active struct {
	ref atomic.Pointer[modelRef]
}

// NewActive returns a holder initialized with m (which may be nil).
func NewActive(m Model) *Active {
	a := &Active{}
	if m != nil {
		a.ref.Store(&modelRef{model: m})
	}
	return a
}

// Load returns the current model, or nil if none is installed.
func (a *Active) Load() Model {
	r := a.ref.Load()
	if r == nil {
		return nil
	}
	return r.model
}

// Swap installs m and returns the model it replaced.
func (a *Active) Swap(m Model) Model {
	old := a.ref.Swap(&modelRef{model: m})
	if old == nil {
		return nil
	}
	return old.model
}

// ToEncoder evaluates the current model.
func (a *Active) ToEncoder(ha, dec float64) (EncoderPair, error) {
	m := a.Load()
	if m == nil {
		return EncoderPair{}, ErrNoModel
	}
	return m.ToEncoder(ha, dec)
}

// Kind reports the kind of the current model, or "" if none is installed.
func (a *Active) Kind() Kind {
	m := a.Load()
	if m == nil {
		return ""
	}
	return m.Kind()
}

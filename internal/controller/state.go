package controller

import "errors"

// State is the controller lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Error
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Error:
		return "error"
	case TornDown:
		return "torn down"
	default:
		return "unknown"
	}
}

var (
	ErrNotReady          = errors.New("controller: map not ready")
	ErrTornDown          = errors.New("controller: torn down")
	ErrInvalidTransition = errors.New("controller: invalid state transition")
)

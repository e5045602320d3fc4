package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module has been administratively halted.
// A nil view means nothing is ever paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating operations on a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// PauseSet is a static PauseView built from configuration.
type PauseSet map[string]struct{}

// NewPauseSet normalises the module names into a PauseSet.
func NewPauseSet(modules []string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, module := range modules {
		if name := strings.ToLower(strings.TrimSpace(module)); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

func (s PauseSet) IsPaused(module string) bool {
	_, ok := s[strings.ToLower(module)]
	return ok
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

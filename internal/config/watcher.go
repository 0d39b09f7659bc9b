package config

import (
	"fmt"

	"github.com/MrWong99/lorelens/internal/watch"
)

// Watcher polls a config file and hands every new valid config to a
// callback. Invalid edits are logged and ignored.
type Watcher = watch.Watcher[*Config]

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...watch.Option) (*Watcher, error) {
	w, err := watch.New(path, Parse, onChange, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	return w, nil
}

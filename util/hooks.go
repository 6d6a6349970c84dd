package util

import "sync"

// Events hooks can be attached to
const (
	// Runtime configuration was replaced
	ConfigReloaded = "config.reloaded"
)

var (
	hooks   = make(map[string][]func() error)
	hooksMu sync.RWMutex
)

// Hook a function to execute on an event
func Hook(event string, fn func() error) {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	hooks[event] = append(hooks[event], fn)
}

// Trigger runs all hooks for the specified event. All hooks are run, even if
// some fail. The first error is returned.
func Trigger(event string) (err error) {
	hooksMu.RLock()
	fns := hooks[event]
	hooksMu.RUnlock()

	for _, f := range fns {
		if e := f(); e != nil && err == nil {
			err = e
		}
	}
	return
}

// ClearHooks removes all hooks. Used only in tests.
func ClearHooks() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = make(map[string][]func() error)
}

// lookup.go resolves runner commands to absolute paths via $PATH search.
// Paths are cached so repeated executions of the same language don't hit
// the filesystem on every file save.
package runner

import (
	"fmt"
	"os/exec"
	"sync"
)

// CommandCache caches resolved command paths.
type CommandCache struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewCommandCache creates an empty command path cache.
func NewCommandCache() *CommandCache {
	return &CommandCache{
		cache: make(map[string]string),
	}
}

// Resolve returns the absolute path of the named command, searching $PATH
// on the first call and the cache afterwards.
func (c *CommandCache) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty command name")
	}

	c.mu.RLock()
	if path, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return path, nil
	}
	c.mu.RUnlock()

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("command %q not found in PATH: %w", name, err)
	}

	c.mu.Lock()
	c.cache[name] = path
	c.mu.Unlock()

	return path, nil
}

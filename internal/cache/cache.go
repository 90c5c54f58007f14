// Package cache holds the latest value per source, replacing each entry as
// a whole so readers always get a complete, self-consistent object.
package cache

import (
	"maps"
	"reflect"
	"sync"
)

// EqualFunc decides whether a replacement carries new content. When it
// returns true the update is stored silently, without a broadcast.
type EqualFunc func(source string, old, new any) bool

type Cache struct {
	data         map[string]any
	equalFunc    EqualFunc
	onUpdateFunc func(string, any)
	mu           sync.RWMutex
}

// New builds a cache that reports content changes through onUpdateFunc.
// A nil equalFunc falls back to reflect.DeepEqual.
func New(equalFunc EqualFunc, onUpdateFunc func(string, any)) *Cache {
	if equalFunc == nil {
		equalFunc = func(_ string, old, new any) bool {
			return reflect.DeepEqual(old, new)
		}
	}
	return &Cache{
		data:         make(map[string]any),
		equalFunc:    equalFunc,
		onUpdateFunc: onUpdateFunc,
	}
}

// Update stores the value unconditionally and broadcasts it when the
// content differs from what was held before.
func (c *Cache) Update(name string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := !c.equalFunc(name, c.data[name], data)
	c.data[name] = data
	if changed && c.onUpdateFunc != nil {
		c.onUpdateFunc(name, data)
	}
}

func (c *Cache) Get(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.data[name]
}

func (c *Cache) Dump() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.data)
}

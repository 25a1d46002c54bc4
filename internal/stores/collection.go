package stores

import "sync"

type entityPtr[T any] interface {
	*T
	GetID() string
	SetID(id string)
	UpdatedAtMillis() int64
}

// collection is the in-memory, ordered state of one entity type.
// Every mutating method returns an undo func that restores the prior state of the
// touched items. Undo funcs are idempotent.
type collection[T any, P entityPtr[T]] struct {
	mu     sync.RWMutex
	items  []T
	loaded bool
}

func idOf[T any, P entityPtr[T]](item T) string {
	return P(&item).GetID()
}

func (c *collection[T, P]) all() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *collection[T, P]) isLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *collection[T, P]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *collection[T, P]) indexLocked(id string) int {
	for i := range c.items {
		if P(&c.items[i]).GetID() == id {
			return i
		}
	}
	return -1
}

func (c *collection[T, P]) reset(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
	c.loaded = true
}

// put inserts or replaces item by id.
func (c *collection[T, P]) put(item T) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := idOf[T, P](item)
	i := c.indexLocked(id)
	if i >= 0 {
		prev := c.items[i]
		c.items[i] = item
		return c.restorer(id, prev, true, i)
	}
	c.items = append(c.items, item)
	var zero T
	return c.restorer(id, zero, false, len(c.items)-1)
}

// modify applies fn to the item with id in place.
func (c *collection[T, P]) modify(id string, fn func(*T)) (before, after T, undo func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return before, after, nil, false
	}
	before = c.items[i]
	fn(&c.items[i])
	after = c.items[i]
	return before, after, c.restorer(id, before, true, i), true
}

func (c *collection[T, P]) remove(id string) (T, func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		var zero T
		return zero, nil, false
	}
	removed := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	return removed, c.restorer(id, removed, true, i), true
}

// removeWhere drops every item for which match reports true.
func (c *collection[T, P]) removeWhere(match func(T) bool) ([]T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		removed []T
		undos   []func()
		kept    = c.items[:0:0]
	)
	for i, item := range c.items {
		if match(item) {
			removed = append(removed, item)
			undos = append(undos, c.restorer(idOf[T, P](item), item, true, i))
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	return removed, func() {
		for _, undo := range undos {
			undo()
		}
	}
}

// replaceID swaps the item stored under oldID for item, keeping its position.
func (c *collection[T, P]) replaceID(oldID string, item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(oldID)
	if i < 0 {
		return false
	}
	if dup := c.indexLocked(idOf[T, P](item)); dup >= 0 && dup != i {
		c.items = append(c.items[:dup], c.items[dup+1:]...)
		if dup < i {
			i--
		}
	}
	c.items[i] = item
	return true
}

func (c *collection[T, P]) swapID(oldID, newID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(oldID)
	if i < 0 || c.indexLocked(newID) >= 0 {
		return false
	}
	P(&c.items[i]).SetID(newID)
	return true
}

// restorer returns a func that puts the item with id back to prev, or removes it
// when it did not exist.
func (c *collection[T, P]) restorer(id string, prev T, existed bool, at int) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		i := c.indexLocked(id)
		switch {
		case existed && i >= 0:
			c.items[i] = prev
		case existed:
			at := min(at, len(c.items))
			c.items = append(c.items, prev)
			copy(c.items[at+1:], c.items[at:])
			c.items[at] = prev
		case i >= 0:
			c.items = append(c.items[:i], c.items[i+1:]...)
		}
	}
}

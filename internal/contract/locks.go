package contract

import "sync"

// caseLocks hands out one mutex per case id and forgets it once unused.
type caseLocks struct {
	mu    sync.Mutex
	locks map[uint64]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[uint64]*caseLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (c *caseLocks) lock(id uint64) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &caseLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

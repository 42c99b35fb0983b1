package service

import "sync"

// pairLocks serializes work per ordered (sender, recipient) pair. Entries
// are dropped once no goroutine holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLock)}
}

// lock blocks until the pair is free and returns the matching unlock.
func (p *pairLocks) lock(senderID, recipientID string) func() {
	key := senderID + "\x00" + recipientID

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

// Package presence tracks which users hold a live push connection and
// hands payloads to those connections without blocking the caller.
package presence

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-messenger/pkg/log"
)

// Conn is a live outbound channel to one user.
type Conn interface {
	ID() string
	UserID() string
	// Deliver enqueues payload without blocking. It returns false when the
	// connection is closed or its buffer is full.
	Deliver(payload []byte) bool
	Close()
}

// Registry maps a user id to that user's single current connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register makes conn the user's current connection. A previous connection
// of the same user is closed and returned.
func (r *Registry) Register(conn Conn) Conn {
	r.mu.Lock()
	old, ok := r.conns[conn.UserID()]
	r.conns[conn.UserID()] = conn
	r.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldUserID, conn.UserID()).Str(log.FieldConnID, conn.ID()).Msg("connection registered")

	if ok && old != conn {
		l.Debug().Str(log.FieldUserID, conn.UserID()).Str(log.FieldConnID, old.ID()).Msg("connection superseded")
		old.Close()
		return old
	}
	return nil
}

// Unregister removes conn if it is still the user's current connection.
// It reports whether an entry was removed.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[conn.UserID()]
	removed := ok && cur == conn
	if removed {
		delete(r.conns, conn.UserID())
	}
	r.mu.Unlock()

	if removed {
		l := log.L()
		l.Debug().Str(log.FieldUserID, conn.UserID()).Str(log.FieldConnID, conn.ID()).Msg("connection unregistered")
	}
	return removed
}

// Lookup returns the user's current connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Push JSON-encodes payload and hands it to the user's connection. It
// returns false when the user is not connected or the hand-off failed.
func (r *Registry) Push(userID string, payload interface{}) bool {
	conn, ok := r.Lookup(userID)
	if !ok {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to encode push payload")
		return false
	}
	return conn.Deliver(data)
}

// CloseAll closes and forgets every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

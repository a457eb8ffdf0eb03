// Package registry tracks live transport connections and the room each one
// has been admitted to.
package registry

import (
	"errors"
	"sync"
	"time"

	"coderoom/pkg/logger"
)

var (
	ErrAlreadyRegistered = errors.New("connection is already registered")
	ErrUnknownConnection = errors.New("unknown connection")
)

// Conn is the outbound half of a client connection.
type Conn interface {
	ID() string
	// Send queues data for delivery and reports false if the connection
	// could not accept it.
	Send(data []byte) bool
	Close()
	// RemoteAddr is the peer host, or "" when unknown.
	RemoteAddr() string
}

type Entry struct {
	Conn        Conn
	RoomID      string
	Username    string
	RemoteAddr  string
	ConnectedAt time.Time
}

// Associated reports whether the connection has been admitted to a room.
func (e Entry) Associated() bool {
	return e.RoomID != ""
}

// failureWindow is how long failed password attempts are remembered after
// the most recent one.
const failureWindow = 15 * time.Minute

type failures struct {
	count int
	last  time.Time
}

type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	failures map[string]*failures
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		entries:  make(map[string]*Entry),
		failures: make(map[string]*failures),
		now:      time.Now,
	}
}

func (r *Registry) Register(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[conn.ID()]; exists {
		return ErrAlreadyRegistered
	}
	r.entries[conn.ID()] = &Entry{Conn: conn, RemoteAddr: conn.RemoteAddr(), ConnectedAt: r.now()}
	logger.Debug("Connection %s registered", conn.ID())
	return nil
}

// Associate binds a connection to a room and username, replacing any
// previous association.
func (r *Registry) Associate(connID, roomID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connID]
	if !ok {
		return ErrUnknownConnection
	}
	entry.RoomID = roomID
	entry.Username = username
	logger.Debug("Connection %s associated with %s in room %s", connID, username, roomID)
	return nil
}

// Dissociate clears the room binding while keeping the connection registered.
func (r *Registry) Dissociate(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[connID]; ok {
		entry.RoomID = ""
		entry.Username = ""
	}
}

// Lookup returns a copy of the entry for connID.
func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (r *Registry) Conn(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[connID]
	if !ok {
		return nil, false
	}
	return entry.Conn, true
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; ok {
		delete(r.entries, connID)
		logger.Debug("Connection %s removed", connID)
	}
}

// Failed password attempts are counted per room and remote host, so a
// client cannot reset its count by reconnecting. Connections without a
// known host are counted on their own.
func (r *Registry) failureKey(connID, roomID string) (string, bool) {
	entry, ok := r.entries[connID]
	if !ok {
		return "", false
	}
	source := entry.RemoteAddr
	if source == "" {
		source = "conn:" + connID
	}
	return roomID + "|" + source, true
}

// FailedPasswords returns the failed attempts recorded against room roomID
// from the host behind connID.
func (r *Registry) FailedPasswords(connID, roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.failureKey(connID, roomID)
	if !ok {
		return 0
	}
	f, ok := r.failures[key]
	if !ok || r.now().Sub(f.last) > failureWindow {
		return 0
	}
	return f.count
}

// RecordFailedPassword increments and returns the failed attempt count for
// room roomID from the host behind connID.
func (r *Registry) RecordFailedPassword(connID, roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.failureKey(connID, roomID)
	if !ok {
		return 0
	}
	now := r.now()
	r.pruneFailures(now)
	f, ok := r.failures[key]
	if !ok {
		f = &failures{}
		r.failures[key] = f
	}
	f.count++
	f.last = now
	return f.count
}

func (r *Registry) ResetFailedPasswords(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.failureKey(connID, roomID); ok {
		delete(r.failures, key)
	}
}

func (r *Registry) pruneFailures(now time.Time) {
	for key, f := range r.failures {
		if now.Sub(f.last) > failureWindow {
			delete(r.failures, key)
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

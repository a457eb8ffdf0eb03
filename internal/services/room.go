package services

import (
	"encoding/json"
	"sync"
	"time"

	"coderoom/internal/models"
)

// Room is the in-memory state of one collaborative room. All fields are
// guarded by mu; mutations come from the room's hub goroutine while HTTP
// handlers and the pre-join dispatcher only read.
type Room struct {
	mu           sync.RWMutex
	id           string
	name         string
	passwordHash string
	owner        string
	createdAt    time.Time
	members      []*models.Member
	banned       map[string]bool
	fileTree     *models.FileNode
	messages     []models.ChatMessage
	drawing      json.RawMessage
}

func newRoom(id, name, passwordHash, owner string, createdAt time.Time) *Room {
	return &Room{
		id:           id,
		name:         name,
		passwordHash: passwordHash,
		owner:        owner,
		createdAt:    createdAt,
		banned:       make(map[string]bool),
		fileTree:     newRootDirectory(),
	}
}

func roomFromRecord(rec *models.RoomRecord, messages []models.ChatMessage) *Room {
	r := newRoom(rec.ID, rec.Name, rec.PasswordHash, rec.Owner, rec.CreatedAt)
	if rec.FileTree != nil {
		r.fileTree = rec.FileTree
	}
	r.drawing = rec.Drawing
	r.messages = messages
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Room) setName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

func (r *Room) Owner() string { return r.owner }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) HasPassword() bool { return r.passwordHash != "" }

func (r *Room) IsOwner(username string) bool {
	return r.owner != "" && r.owner == username
}

func (r *Room) Info() models.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.RoomInfo{
		RoomID:      r.id,
		RoomName:    r.name,
		HasPassword: r.passwordHash != "",
		CreatedAt:   r.createdAt,
		UserCount:   len(r.members),
	}
}

func (r *Room) record() *models.RoomRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &models.RoomRecord{
		ID:           r.id,
		Name:         r.name,
		PasswordHash: r.passwordHash,
		Owner:        r.owner,
		CreatedAt:    r.createdAt,
		FileTree:     cloneNode(r.fileTree),
		Drawing:      r.drawing,
	}
}

// AddMember appends m to the member list. It reports false when a member
// with the same username already exists.
func (r *Room) AddMember(m *models.Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(m.Username) >= 0 {
		return false
	}
	cp := *m
	r.members = append(r.members, &cp)
	return true
}

// Member returns a copy of the member with the given username.
func (r *Room) Member(username string) (models.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(username)
	if i < 0 {
		return models.Member{}, false
	}
	return *r.members[i], true
}

// MemberByConn returns a copy of the member currently bound to connID.
func (r *Room) MemberByConn(connID string) (models.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.ConnID == connID {
			return *m, true
		}
	}
	return models.Member{}, false
}

// UpdateMember runs fn on the stored member under the write lock.
func (r *Room) UpdateMember(username string, fn func(m *models.Member)) (models.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(username)
	if i < 0 {
		return models.Member{}, false
	}
	fn(r.members[i])
	return *r.members[i], true
}

func (r *Room) RemoveMember(username string) (models.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(username)
	if i < 0 {
		return models.Member{}, false
	}
	removed := *r.members[i]
	r.members = append(r.members[:i], r.members[i+1:]...)
	return removed, true
}

// Members returns copies of all members in join order.
func (r *Room) Members() []*models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Member, 0, len(r.members))
	for _, m := range r.members {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) Ban(username string) {
	r.mu.Lock()
	r.banned[username] = true
	r.mu.Unlock()
}

func (r *Room) IsBanned(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.banned[username]
}

func (r *Room) indexOf(username string) int {
	for i, m := range r.members {
		if m.Username == username {
			return i
		}
	}
	return -1
}

// Package audiostore keeps synthesized audio in memory between a media
// session loading it and the browser fetching it, much like a blob URL.
package audiostore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("audio resource not found")

// Resource is a handle to one stored clip.
type Resource struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	MIMEType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	resource Resource
	data     []byte
}

type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	urlPrefix string
	now       func() time.Time
}

// New creates a store whose resource URLs are rooted at urlPrefix, e.g.
// "/api/v1/sessions".
func New(urlPrefix string) *Store {
	return &Store{
		entries:   make(map[string]*entry),
		urlPrefix: urlPrefix,
		now:       time.Now,
	}
}

// Put stores a copy of data for sessionID.
func (s *Store) Put(sessionID string, data []byte, mimeType string) (Resource, error) {
	if len(data) == 0 {
		return Resource{}, fmt.Errorf("audio is empty")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	id := uuid.NewString()
	res := Resource{
		ID:        id,
		SessionID: sessionID,
		URL:       fmt.Sprintf("%s/%s/audio/%s", s.urlPrefix, sessionID, id),
		MIMEType:  mimeType,
		Size:      len(buf),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.entries[id] = &entry{resource: res, data: buf}
	s.mu.Unlock()
	return res, nil
}

// Get returns the clip if it belongs to sessionID.
func (s *Store) Get(sessionID, id string) (Resource, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.resource.SessionID != sessionID {
		return Resource{}, nil, ErrNotFound
	}
	return e.resource, e.data, nil
}

// Release frees one clip. Releasing an unknown id is a no-op.
func (s *Store) Release(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// ReleaseSession frees every clip owned by sessionID and reports how many
// were dropped.
func (s *Store) ReleaseSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.resource.SessionID == sessionID {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/hypecasthq/hypecast/internal/models"
)

const lockTimeout = 5 * time.Second

// list names inside the status document.
const (
	listScheduled = "scheduled_posts"
	listPosted    = "posted"
	listFailed    = "failed"
)

// StatusStore is the durable status database: a single JSON document holding
// the scheduled/posted/failed lists. The whole document is read at startup
// and rewritten atomically on every mutation. Every post ID lives in exactly
// one of the three lists.
type StatusStore struct {
	path string
	lock *FileLock
	data *statusData
	mu   sync.RWMutex

	// lists maps post ID -> list name; rebuilt on load, never persisted.
	lists map[string]string
}

type statusData struct {
	ScheduledPosts []*models.Post `json:"scheduled_posts"`
	Posted         []*models.Post `json:"posted"`
	Failed         []*models.Post `json:"failed"`
	LastUpdate     time.Time      `json:"last_update"`
}

// NewStatusStore opens the status database at path, creating an empty one
// if the file does not exist. The store holds an exclusive file lock until
// Close so two scheduler processes cannot share one file.
func NewStatusStore(path string) (*StatusStore, error) {
	s := &StatusStore{
		path: path,
		lock: NewFileLock(path),
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

func (s *StatusStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = &statusData{
				ScheduledPosts: []*models.Post{},
				Posted:         []*models.Post{},
				Failed:         []*models.Post{},
			}
			s.lists = make(map[string]string)
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "status", Err: err}
	}

	s.data = &statusData{}
	if err := json.Unmarshal(data, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "status", Err: ErrStorageCorrupt}
	}

	s.lists = make(map[string]string)
	for _, p := range s.data.ScheduledPosts {
		s.lists[p.ID] = listScheduled
	}
	for _, p := range s.data.Posted {
		s.lists[p.ID] = listPosted
	}
	for _, p := range s.data.Failed {
		s.lists[p.ID] = listFailed
	}

	return nil
}

func (s *StatusStore) save() error {
	s.data.LastUpdate = time.Now()

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "status", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "status", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "status", Err: err}
	}

	return nil
}

// Close releases the file lock.
func (s *StatusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

// AppendScheduled adds new posts to the scheduled list. IDs already present
// in any list are rejected.
func (s *StatusStore) AppendScheduled(posts ...*models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range posts {
		if _, exists := s.lists[p.ID]; exists {
			return &StorageError{Op: "append", Entity: "post", ID: p.ID, Err: ErrAlreadyExists}
		}
	}
	for _, p := range posts {
		s.data.ScheduledPosts = append(s.data.ScheduledPosts, p)
		s.lists[p.ID] = listScheduled
	}

	return s.save()
}

// UpdateScheduled persists in-place changes (status, retries, scheduled
// time) to a post that stays in the scheduled list.
func (s *StatusStore) UpdateScheduled(post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lists[post.ID] != listScheduled {
		return &StorageError{Op: "update", Entity: "post", ID: post.ID, Err: ErrNotFound}
	}

	for i, p := range s.data.ScheduledPosts {
		if p.ID == post.ID {
			s.data.ScheduledPosts[i] = post
			return s.save()
		}
	}
	return &StorageError{Op: "update", Entity: "post", ID: post.ID, Err: ErrStorageCorrupt}
}

// MoveToPosted moves a post from the scheduled list to the posted list.
func (s *StatusStore) MoveToPosted(post *models.Post) error {
	return s.move(post, listPosted)
}

// MoveToFailed moves a post from the scheduled list to the failed list.
func (s *StatusStore) MoveToFailed(post *models.Post) error {
	return s.move(post, listFailed)
}

func (s *StatusStore) move(post *models.Post, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lists[post.ID] != listScheduled {
		return &StorageError{Op: "move", Entity: "post", ID: post.ID, Err: ErrNotFound}
	}

	idx := -1
	for i, p := range s.data.ScheduledPosts {
		if p.ID == post.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &StorageError{Op: "move", Entity: "post", ID: post.ID, Err: ErrStorageCorrupt}
	}

	s.data.ScheduledPosts = append(s.data.ScheduledPosts[:idx], s.data.ScheduledPosts[idx+1:]...)
	switch target {
	case listPosted:
		s.data.Posted = append(s.data.Posted, post)
	case listFailed:
		s.data.Failed = append(s.data.Failed, post)
	}
	s.lists[post.ID] = target

	return s.save()
}

// ListScheduled returns the posts currently in the scheduled list.
func (s *StatusStore) ListScheduled() []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]*models.Post, len(s.data.ScheduledPosts))
	copy(posts, s.data.ScheduledPosts)
	return posts
}

// Summary returns a snapshot of all three lists.
func (s *StatusStore) Summary() *models.StatusSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &models.StatusSummary{
		Scheduled:  make([]*models.Post, len(s.data.ScheduledPosts)),
		Posted:     make([]*models.Post, len(s.data.Posted)),
		Failed:     make([]*models.Post, len(s.data.Failed)),
		LastUpdate: s.data.LastUpdate,
	}
	copy(summary.Scheduled, s.data.ScheduledPosts)
	copy(summary.Posted, s.data.Posted)
	copy(summary.Failed, s.data.Failed)
	return summary
}

// ListOf reports which list a post ID currently lives in, or "" if unknown.
func (s *StatusStore) ListOf(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[id]
}

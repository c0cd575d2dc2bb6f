package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hypecasthq/hypecast/internal/models"
)

// HistoryStore keeps one immutable JSON record per manually-posted video,
// independent of the scheduler's status database. Records are written once
// and never modified.
type HistoryStore struct {
	dir string
}

func NewHistoryStore(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "create", Entity: "history", Err: err}
	}
	return &HistoryStore{dir: dir}, nil
}

// Record writes the post as data/post_history/<post_id>.json. An existing
// record is never overwritten.
func (h *HistoryStore) Record(post *models.Post) error {
	path := filepath.Join(h.dir, post.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return &StorageError{Op: "record", Entity: "history", ID: post.ID, Err: ErrAlreadyExists}
	}

	writer, err := NewAtomicWriter(path)
	if err != nil {
		return &StorageError{Op: "record", Entity: "history", ID: post.ID, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(post); err != nil {
		writer.Abort()
		return &StorageError{Op: "record", Entity: "history", ID: post.ID, Err: err}
	}
	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "record", Entity: "history", ID: post.ID, Err: err}
	}
	return nil
}

// List loads every history record, newest first by post ID (IDs embed the
// creation timestamp).
func (h *HistoryStore) List() ([]*models.Post, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "history", Err: err}
	}

	var posts []*models.Post
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(h.dir, entry.Name()))
		if err != nil {
			return nil, &StorageError{Op: "list", Entity: "history", ID: entry.Name(), Err: err}
		}
		post := &models.Post{}
		if err := json.Unmarshal(data, post); err != nil {
			// Skip unreadable records rather than failing the whole listing
			continue
		}
		posts = append(posts, post)
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
	return posts, nil
}

// Package draft persists chat threads for unauthenticated sessions. Threads
// live in a pebble keyspace under a single storage key holding the JSON array
// of draft records, capped to a fixed number of recent threads.
package draft

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/dotagpt/dotagpt/internal/chat"
	"github.com/dotagpt/dotagpt/internal/logger"
)

// MaxThreads limits retained drafts to prevent unbounded growth.
const MaxThreads = 10

var storageKey = []byte("drafts:threads")

type Thread struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (t *Thread) Meta() chat.Thread {
	preview := ""
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].IsUser {
			preview = chat.TruncatePreview(t.Messages[i].Content)
			break
		}
	}
	return chat.Thread{
		ID:                 t.ID,
		Title:              t.Title,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		MessageCount:       len(t.Messages) / 2,
		LastMessagePreview: preview,
	}
}

type Store struct {
	mu      sync.Mutex
	db      *pebble.DB
	maxKeep int
	log     *logger.Logger
}

func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open draft store: %w", err)
	}
	return &Store{db: db, maxKeep: MaxThreads, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create generates a new draft thread, prepends it to the index, and evicts
// the oldest threads beyond the retained cap.
func (s *Store) Create(title string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if title == "" {
		title = "New Chat"
	}
	now := time.Now().UTC()
	thread := Thread{
		ID:        chat.DraftIDPrefix + uuid.NewString(),
		Title:     title,
		Messages:  []chat.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	threads, err := s.load()
	if err != nil {
		return nil, err
	}
	threads = append([]Thread{thread}, threads...)
	if len(threads) > s.maxKeep {
		threads = threads[:s.maxKeep]
	}

	s.save(threads)
	return &thread, nil
}

// Append adds a message to the named thread, bumps updatedAt, and moves the
// thread to the front of the index.
func (s *Store) Append(threadID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads, err := s.load()
	if err != nil {
		return err
	}

	idx := -1
	for i := range threads {
		if threads[i].ID == threadID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("draft thread %s not found", threadID)
	}

	threads[idx].Messages = append(threads[idx].Messages, msg)
	threads[idx].UpdatedAt = time.Now().UTC()

	updated := threads[idx]
	threads = append(threads[:idx], threads[idx+1:]...)
	threads = append([]Thread{updated}, threads...)

	s.save(threads)
	return nil
}

// Get returns the named thread, or nil when absent.
func (s *Store) Get(threadID string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range threads {
		if threads[i].ID == threadID {
			return &threads[i], nil
		}
	}
	return nil, nil
}

// List returns all draft threads, most recently updated first.
func (s *Store) List() ([]Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete removes the named thread. Deleting an absent thread is a no-op.
func (s *Store) Delete(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads, err := s.load()
	if err != nil {
		return err
	}
	filtered := threads[:0]
	for _, t := range threads {
		if t.ID != threadID {
			filtered = append(filtered, t)
		}
	}
	s.save(filtered)
	return nil
}

func (s *Store) load() ([]Thread, error) {
	value, closer, err := s.db.Get(storageKey)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read draft threads: %w", err)
	}
	defer closer.Close()

	var threads []Thread
	if err := json.Unmarshal(value, &threads); err != nil {
		return nil, fmt.Errorf("failed to decode draft threads: %w", err)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

// save writes the thread index back. On a write failure it halves the cap and
// retries once with the reduced set; if that also fails the write is dropped,
// the in-memory transcript stays authoritative for the session.
func (s *Store) save(threads []Thread) {
	err := s.write(threads)
	if err == nil {
		return
	}
	s.log.Warn("draft write failed, retrying with reduced cap", "error", err)

	reduced := threads
	if keep := s.maxKeep / 2; len(reduced) > keep {
		reduced = reduced[:keep]
	}
	if err := s.write(reduced); err != nil {
		s.log.Warn("draft write dropped after retry", "error", err)
	}
}

func (s *Store) write(threads []Thread) error {
	data, err := json.Marshal(threads)
	if err != nil {
		return fmt.Errorf("failed to encode draft threads: %w", err)
	}
	if err := s.db.Set(storageKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write draft threads: %w", err)
	}
	return nil
}

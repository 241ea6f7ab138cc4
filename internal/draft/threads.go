package draft

import (
	"fmt"
	"time"

	"github.com/dotagpt/dotagpt/internal/chat"
)

// The draft store doubles as the reconciliation engine's local persistence
// backend.
var _ chat.ThreadStore = (*Store)(nil)

func (s *Store) CreateThread(title string) (string, error) {
	thread, err := s.Create(title)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

// AppendPair persists both halves of an exchange. No server assigns pair ids
// for drafts, so the store mints one locally.
func (s *Store) AppendPair(threadID, userText, botText string) (string, error) {
	if threadID == "" || userText == "" || botText == "" {
		return "", fmt.Errorf("message pair is missing required fields")
	}

	pairID := chat.NewPairID()
	now := time.Now().UTC()
	for _, msg := range chat.PairToMessages(pairID, userText, botText, now) {
		if err := s.Append(threadID, msg); err != nil {
			return "", err
		}
	}
	return pairID, nil
}

func (s *Store) UpdateTitle(threadID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads, err := s.load()
	if err != nil {
		return err
	}
	for i := range threads {
		if threads[i].ID == threadID {
			threads[i].Title = title
			threads[i].UpdatedAt = time.Now().UTC()
			s.save(threads)
			return nil
		}
	}
	return fmt.Errorf("draft thread %s not found", threadID)
}

func (s *Store) ListMessages(threadID string) ([]chat.Message, error) {
	thread, err := s.Get(threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, chat.ErrThreadNotFound
	}
	return thread.Messages, nil
}

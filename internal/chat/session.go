package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotagpt/dotagpt/internal/llm"
	"github.com/dotagpt/dotagpt/internal/logger"
)

// CompletionClient is the boundary to the external text-completion provider.
// Failures are always typed (*llm.Failure) and carry a retryability flag.
type CompletionClient interface {
	Complete(ctx context.Context, text string) (string, error)
}

// TitleGenerator produces a short thread title from the first exchange.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, basisContent string) (string, error)
}

// ThreadStore is the persistence backend for completed exchanges. Two
// implementations exist: the remote chatroom store for authenticated sessions
// and the local draft store for anonymous ones.
type ThreadStore interface {
	CreateThread(title string) (string, error)
	AppendPair(threadID, userText, botText string) (pairID string, err error)
	UpdateTitle(threadID, title string) error
	ListMessages(threadID string) ([]Message, error)
}

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrSuperseded         = errors.New("submission superseded by a newer one")
	ErrThreadNotFound     = errors.New("thread not found")
)

const maxAttempts = 3

var retryDelays = [maxAttempts]time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Config wires a Session. Remote is nil for anonymous sessions; persistence
// then routes to Local.
type Config struct {
	Completions CompletionClient
	Titler      TitleGenerator
	Remote      ThreadStore
	Local       ThreadStore
	Log         *logger.Logger
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Session is the message reconciliation engine: it turns one user submission
// into exactly one durable message pair, surfaced as a deduplicated,
// monotonically growing transcript, tolerating transient completion failures.
type Session struct {
	completions CompletionClient
	titler      TitleGenerator
	remote      ThreadStore
	local       ThreadStore
	log         *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	transcript   []Message
	threadID     string
	draftText    string
	busy         bool
	activeReq    string
	initialState bool
}

func NewSession(cfg Config) *Session {
	s := &Session{
		completions:  cfg.Completions,
		titler:       cfg.Titler,
		remote:       cfg.Remote,
		local:        cfg.Local,
		log:          cfg.Log,
		sleep:        cfg.Sleep,
		initialState: true,
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transcript returns a copy of the current deduplicated transcript.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// ActiveThreadID returns the persisted thread backing the transcript, or ""
// before the first successful exchange.
func (s *Session) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// IsInitialState reports whether the transcript has never held a message.
func (s *Session) IsInitialState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialState
}

func (s *Session) SetDraftText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draftText = text
}

func (s *Session) DraftText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftText
}

// Submit converts one user submission into a durable message pair. A second
// call while one is pending is rejected, not queued. The returned message is
// the assistant reply, or the synthetic error message when the exchange
// ultimately failed.
func (s *Session) Submit(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}

	// Stage the provisional user message (optimistic append) and tag this
	// attempt with a fresh request token for last-submission-wins tracking.
	token := uuid.NewString()
	s.busy = true
	s.activeReq = token
	provisionalID := NewProvisionalID()
	s.setTranscript(append(s.transcript, Message{
		ID:        provisionalID,
		Content:   text,
		IsUser:    true,
		Timestamp: time.Now().UTC(),
	}))
	s.initialState = false
	s.draftText = ""
	s.mu.Unlock()

	reply, err := s.completeWithRetry(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeReq != token {
		// A newer conversation superseded this attempt while it was in
		// flight; its result must not clobber the current transcript.
		return nil, ErrSuperseded
	}
	s.busy = false

	if err != nil {
		errMsg := s.appendFailureMessage(err)
		return errMsg, err
	}

	pairID := s.persistPair(text, reply)
	s.reconcile(provisionalID, pairID, reply)

	for i := range s.transcript {
		if s.transcript[i].ID == BotMessageID(pairID) {
			msg := s.transcript[i]
			return &msg, nil
		}
	}
	return nil, nil
}

// completeWithRetry issues the completion request, retrying retryable
// failures up to maxAttempts with exponential backoff.
func (s *Session) completeWithRetry(ctx context.Context, text string) (string, error) {
	for attempt := 1; ; attempt++ {
		reply, err := s.completions.Complete(ctx, text)
		if err == nil {
			return reply, nil
		}

		var failure *llm.Failure
		if !errors.As(err, &failure) || !failure.Retryable || attempt >= maxAttempts {
			return "", err
		}

		delay := retryDelays[attempt-1]
		s.log.Debug("retrying completion", "attempt", attempt, "delay", delay, "code", failure.Code)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return "", err
		}
	}
}

// persistPair routes the completed exchange to the backend selected by the
// session's authentication state, lazily creating the thread on the first
// successful send. Storage failures never interrupt the chat flow; the
// transcript stays authoritative and a locally minted pair id is used.
// Caller holds s.mu.
func (s *Session) persistPair(userText, botText string) string {
	backend := s.local
	if s.remote != nil {
		backend = s.remote
	}
	if backend == nil {
		return NewPairID()
	}

	if s.threadID == "" {
		threadID, err := backend.CreateThread(TitleFromMessage(userText))
		if err != nil {
			s.log.Warn("failed to create thread, exchange kept in memory only", "error", err)
			return NewPairID()
		}
		s.threadID = threadID
		if s.titler != nil {
			go s.generateAndSaveTitle(backend, threadID, userText)
		}
	}

	pairID, err := backend.AppendPair(s.threadID, userText, botText)
	if err != nil {
		s.log.Warn("failed to persist message pair", "thread", s.threadID, "error", err)
		return NewPairID()
	}
	return pairID
}

func (s *Session) generateAndSaveTitle(backend ThreadStore, threadID, basisContent string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title, err := s.titler.GenerateTitle(ctx, basisContent)
	if err != nil {
		s.log.Debug("title generation failed", "thread", threadID, "error", err)
		return
	}
	if err := backend.UpdateTitle(threadID, title); err != nil {
		s.log.Debug("failed to save generated title", "thread", threadID, "error", err)
	}
}

// reconcile rewrites the provisional user message to its durable id and
// appends the assistant reply, both guarded against duplicate insertion.
// Caller holds s.mu.
func (s *Session) reconcile(provisionalID, pairID, reply string) {
	durableUserID := UserMessageID(pairID)
	next := make([]Message, 0, len(s.transcript)+1)

	for _, msg := range s.transcript {
		if msg.ID == provisionalID {
			msg.ID = durableUserID
		}
		next = append(next, msg)
	}

	next = append(next, Message{
		ID:        BotMessageID(pairID),
		Content:   reply,
		IsUser:    false,
		Timestamp: time.Now().UTC(),
	})

	s.setTranscript(next)
}

// appendFailureMessage surfaces an exhausted or non-retryable failure as one
// synthetic assistant message. Nothing is persisted; the provisional user
// message stays so the draft is not lost. Caller holds s.mu.
func (s *Session) appendFailureMessage(err error) *Message {
	content := "An unexpected error occurred. Please try again later."
	var failure *llm.Failure
	if errors.As(err, &failure) {
		content = failure.UserMessage()
		s.log.Error("completion failed", "code", failure.Code, "details", failure.Details)
	} else {
		s.log.Error("completion failed", "error", err)
	}

	msg := Message{
		ID:        NewProvisionalID(),
		Content:   content,
		IsUser:    false,
		Timestamp: time.Now().UTC(),
	}
	s.setTranscript(append(s.transcript, msg))
	return &msg
}

// LoadThread replaces the transcript with the named thread's messages. A
// reload of the already-active thread is an idempotent no-op. The backend is
// implied by the id namespace and the session's authentication state.
func (s *Session) LoadThread(threadID string) error {
	s.mu.Lock()
	if threadID == s.threadID && threadID != "" {
		s.mu.Unlock()
		return nil
	}
	backend := s.storeForThread(threadID)
	s.mu.Unlock()

	if backend == nil {
		return ErrThreadNotFound
	}

	messages, err := backend.ListMessages(threadID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = threadID
	s.setTranscript(messages)
	s.initialState = len(s.transcript) == 0
	s.busy = false
	s.activeReq = ""
	return nil
}

func (s *Session) storeForThread(threadID string) ThreadStore {
	if IsDraftThreadID(threadID) {
		return s.local
	}
	if s.remote != nil {
		return s.remote
	}
	return nil
}

// StartNewThread clears the transcript, the active thread, and the pending
// draft, and stops tracking any in-flight request; a late-arriving result is
// discarded as superseded.
func (s *Session) StartNewThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	s.threadID = ""
	s.draftText = ""
	s.activeReq = ""
	s.busy = false
	s.initialState = true
}

// setTranscript is the single deduplicating setter; no other code mutates the
// transcript. Caller holds s.mu.
func (s *Session) setTranscript(msgs []Message) {
	s.transcript = DeduplicateMessages(msgs)
}

// DeduplicateMessages enforces the transcript invariant: message ids are
// unique, and at most one durable message exists per (pair id, role).
// First occurrence wins.
func DeduplicateMessages(msgs []Message) []Message {
	seenIDs := make(map[string]struct{}, len(msgs))
	seenBotPairs := make(map[string]struct{})
	seenUserPairs := make(map[string]struct{})

	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, dup := seenIDs[msg.ID]; dup {
			continue
		}
		if pairID := PairIDFromMessageID(msg.ID); pairID != "" {
			pairs := seenBotPairs
			if msg.IsUser {
				pairs = seenUserPairs
			}
			if _, dup := pairs[pairID]; dup {
				continue
			}
			pairs[pairID] = struct{}{}
		}
		seenIDs[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out
}

package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotagpt/dotagpt/internal/chat"
)

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestUser(t *testing.T, s *SQLiteStore, username string) *User {
	t.Helper()
	user, err := s.CreateUser(username, username+"@example.com", "hash")
	require.NoError(t, err)
	return user
}

func TestCreateAndGetUser(t *testing.T) {
	s := openTestDB(t)

	user := createTestUser(t, s, "gamer")
	assert.Equal(t, "gamer", user.Username)
	assert.Equal(t, "gamer@example.com", user.Email)

	byEmail, err := s.GetUserByEmail("gamer@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	absent, err := s.GetUserByEmail("nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := openTestDB(t)
	createTestUser(t, s, "gamer")

	_, err := s.CreateUser("gamer", "other@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = s.CreateUser("other", "gamer@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestCreateUserMissingFields(t *testing.T) {
	s := openTestDB(t)
	_, err := s.CreateUser("", "a@example.com", "hash")
	assert.Error(t, err)
	_, err = s.CreateUser("a", "", "hash")
	assert.Error(t, err)
}

func TestCreateAndGetChatroom(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")

	room, err := s.CreateChatroom(user.ID, "My chat")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(room.ID, "chatroom_"))
	assert.Equal(t, 0, room.MessageCount)

	got, err := s.GetChatroom(room.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "My chat", got.Title)

	// Chatrooms are owned: another user sees nothing.
	other := createTestUser(t, s, "other")
	hidden, err := s.GetChatroom(room.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, hidden)
}

func TestCreateChatroomDefaultTitle(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "New Chat", room.Title)
}

func TestAppendPairUpdatesMetadata(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "chat")
	require.NoError(t, err)

	pairID, err := s.AppendPair(room.ID, user.ID, "How do I counter PA?", "Buy an MKB.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pairID, "pair_"))

	got, err := s.GetChatroom(room.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, "How do I counter PA?", got.LastMessagePreview)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	_, err = s.AppendPair(room.ID, user.ID, "Another question", "Another answer.")
	require.NoError(t, err)
	got, err = s.GetChatroom(room.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, "Another question", got.LastMessagePreview)
}

func TestAppendPairTruncatesPreview(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "chat")
	require.NoError(t, err)

	long := strings.Repeat("x", 150)
	_, err = s.AppendPair(room.ID, user.ID, long, "ok")
	require.NoError(t, err)

	got, err := s.GetChatroom(room.ID, user.ID)
	require.NoError(t, err)
	assert.Len(t, got.LastMessagePreview, 103)
	assert.True(t, strings.HasSuffix(got.LastMessagePreview, "..."))
}

func TestAppendPairValidation(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "chat")
	require.NoError(t, err)

	_, err = s.AppendPair(room.ID, user.ID, "", "bot")
	assert.Error(t, err)
	_, err = s.AppendPair(room.ID, user.ID, "user", "")
	assert.Error(t, err)
	_, err = s.AppendPair("chatroom_missing", user.ID, "user", "bot")
	assert.ErrorIs(t, err, ErrChatroomNotFound)
}

func TestListMessagesFlattensPairs(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "chat")
	require.NoError(t, err)

	first, err := s.AppendPair(room.ID, user.ID, "q1", "a1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.AppendPair(room.ID, user.ID, "q2", "a2")
	require.NoError(t, err)

	messages, err := s.ListMessages(room.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, chat.UserMessageID(first), messages[0].ID)
	assert.Equal(t, chat.BotMessageID(first), messages[1].ID)
	assert.Equal(t, chat.UserMessageID(second), messages[2].ID)
	assert.Equal(t, chat.BotMessageID(second), messages[3].ID)
	assert.True(t, messages[0].IsUser)
	assert.False(t, messages[1].IsUser)
}

func TestListChatroomsOrdering(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")

	older, err := s.CreateChatroom(user.ID, "older")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := s.CreateChatroom(user.ID, "newer")
	require.NoError(t, err)

	rooms, err := s.ListChatrooms(user.ID, 50)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, newer.ID, rooms[0].ID)

	// Appending to the older chatroom moves it to the front.
	time.Sleep(5 * time.Millisecond)
	_, err = s.AppendPair(older.ID, user.ID, "q", "a")
	require.NoError(t, err)

	rooms, err = s.ListChatrooms(user.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, older.ID, rooms[0].ID)
}

func TestUpdateChatroomTitle(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	room, err := s.CreateChatroom(user.ID, "before")
	require.NoError(t, err)

	require.NoError(t, s.UpdateChatroomTitle(room.ID, user.ID, "after"))
	got, err := s.GetChatroom(room.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)

	assert.Error(t, s.UpdateChatroomTitle(room.ID, user.ID+1, "nope"))
}

func TestUserThreadsAdapter(t *testing.T) {
	s := openTestDB(t)
	user := createTestUser(t, s, "gamer")
	threads := UserThreads{Store: s, UserID: user.ID}

	id, err := threads.CreateThread("adapter chat")
	require.NoError(t, err)

	pairID, err := threads.AppendPair(id, "q", "a")
	require.NoError(t, err)

	msgs, err := threads.ListMessages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.UserMessageID(pairID), msgs[0].ID)

	_, err = threads.ListMessages("chatroom_missing")
	assert.ErrorIs(t, err, chat.ErrThreadNotFound)

	require.NoError(t, threads.UpdateTitle(id, "renamed"))
}

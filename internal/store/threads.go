package store

import "github.com/dotagpt/dotagpt/internal/chat"

// UserThreads binds the chatroom store to one authenticated user, satisfying
// the reconciliation engine's remote backend interface.
type UserThreads struct {
	Store  *SQLiteStore
	UserID int64
}

var _ chat.ThreadStore = UserThreads{}

func (u UserThreads) CreateThread(title string) (string, error) {
	room, err := u.Store.CreateChatroom(u.UserID, title)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

func (u UserThreads) AppendPair(threadID, userText, botText string) (string, error) {
	return u.Store.AppendPair(threadID, u.UserID, userText, botText)
}

func (u UserThreads) UpdateTitle(threadID, title string) error {
	return u.Store.UpdateChatroomTitle(threadID, u.UserID, title)
}

func (u UserThreads) ListMessages(threadID string) ([]chat.Message, error) {
	room, err := u.Store.GetChatroom(threadID, u.UserID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, chat.ErrThreadNotFound
	}
	return u.Store.ListMessages(threadID)
}

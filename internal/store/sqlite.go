package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dotagpt/dotagpt/internal/chat"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chatrooms (
        id TEXT PRIMARY KEY,
        user_id INTEGER NOT NULL,
        title TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        message_count INTEGER NOT NULL DEFAULT 0,
        last_message_preview TEXT,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS message_pairs (
        pair_id TEXT PRIMARY KEY,
        chatroom_id TEXT NOT NULL,
        user_message TEXT NOT NULL,
        bot_message TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (chatroom_id) REFERENCES chatrooms (id)
    );

    CREATE INDEX IF NOT EXISTS idx_chatrooms_updated ON chatrooms (user_id, updated_at DESC);
    CREATE INDEX IF NOT EXISTS idx_pairs_chatroom ON message_pairs (chatroom_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	return s.queryUser("SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?", email)
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	return s.queryUser("SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username)
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	return s.queryUser("SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *SQLiteStore) queryUser(query string, arg interface{}) (*User, error) {
	var user User
	err := s.db.QueryRow(query, arg).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	if username == "" || email == "" || passwordHash == "" {
		return nil, fmt.Errorf("user record is missing required fields")
	}
	res, err := s.db.Exec("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)", username, email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = fmt.Errorf("username or email already registered")

// Chatroom methods

func (s *SQLiteStore) CreateChatroom(userID int64, title string) (*Chatroom, error) {
	if title == "" {
		title = "New Chat"
	}
	chatroomID := "chatroom_" + uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		"INSERT INTO chatrooms (id, user_id, title, created_at, updated_at, message_count) VALUES (?, ?, ?, ?, ?, 0)",
		chatroomID, userID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chatroom: %w", err)
	}
	return &Chatroom{ID: chatroomID, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) GetChatroom(chatroomID string, userID int64) (*Chatroom, error) {
	var room Chatroom
	var preview sql.NullString
	err := s.db.QueryRow(
		"SELECT id, user_id, title, created_at, updated_at, message_count, last_message_preview FROM chatrooms WHERE id = ? AND user_id = ?",
		chatroomID, userID,
	).Scan(&room.ID, &room.UserID, &room.Title, &room.CreatedAt, &room.UpdatedAt, &room.MessageCount, &preview)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chatroom: %w", err)
	}
	if preview.Valid {
		room.LastMessagePreview = preview.String
	}
	return &room, nil
}

func (s *SQLiteStore) ListChatrooms(userID int64, limit int) ([]Chatroom, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, user_id, title, created_at, updated_at, message_count, last_message_preview FROM chatrooms WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chatrooms: %w", err)
	}
	defer rows.Close()

	var rooms []Chatroom
	for rows.Next() {
		var room Chatroom
		var preview sql.NullString
		if err := rows.Scan(&room.ID, &room.UserID, &room.Title, &room.CreatedAt, &room.UpdatedAt, &room.MessageCount, &preview); err != nil {
			return nil, fmt.Errorf("failed to scan chatroom row: %w", err)
		}
		if preview.Valid {
			room.LastMessagePreview = preview.String
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *SQLiteStore) UpdateChatroomTitle(chatroomID string, userID int64, title string) error {
	res, err := s.db.Exec(
		"UPDATE chatrooms SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		title, time.Now().UTC(), chatroomID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chatroom title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("chatroom not found or not owned by user, title not updated")
	}
	return nil
}

// Message pair methods

// AppendPair persists one exchange and the chatroom metadata update as a
// single transaction: the message row is written before the metadata so a
// partial failure never leaves metadata referencing an unwritten pair.
func (s *SQLiteStore) AppendPair(chatroomID string, userID int64, userText, botText string) (string, error) {
	if chatroomID == "" || userText == "" || botText == "" {
		return "", fmt.Errorf("message pair is missing required fields")
	}

	room, err := s.GetChatroom(chatroomID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to verify chatroom: %w", err)
	}
	if room == nil {
		return "", ErrChatroomNotFound
	}

	pairID := "pair_" + uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO message_pairs (pair_id, chatroom_id, user_message, bot_message, timestamp) VALUES (?, ?, ?, ?, ?)",
		pairID, chatroomID, userText, botText, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert message pair: %w", err)
	}

	_, err = tx.Exec(
		"UPDATE chatrooms SET updated_at = ?, message_count = message_count + 1, last_message_preview = ? WHERE id = ?",
		now, chat.TruncatePreview(userText), chatroomID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update chatroom metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit message pair: %w", err)
	}
	return pairID, nil
}

// ErrChatroomNotFound is returned when a chatroom id does not exist or is not
// owned by the requesting user.
var ErrChatroomNotFound = fmt.Errorf("chatroom not found")

func (s *SQLiteStore) ListPairs(chatroomID string) ([]MessagePair, error) {
	rows, err := s.db.Query(
		"SELECT pair_id, chatroom_id, user_message, bot_message, timestamp FROM message_pairs WHERE chatroom_id = ? ORDER BY timestamp ASC",
		chatroomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query message pairs: %w", err)
	}
	defer rows.Close()

	var pairs []MessagePair
	for rows.Next() {
		var pair MessagePair
		if err := rows.Scan(&pair.PairID, &pair.ChatroomID, &pair.UserText, &pair.BotText, &pair.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message pair row: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// ListMessages converts the stored pair records into the flat display shape,
// ordered by timestamp ascending.
func (s *SQLiteStore) ListMessages(chatroomID string) ([]chat.Message, error) {
	pairs, err := s.ListPairs(chatroomID)
	if err != nil {
		return nil, err
	}

	var messages []chat.Message
	for _, pair := range pairs {
		messages = append(messages, chat.PairToMessages(pair.PairID, pair.UserText, pair.BotText, pair.Timestamp)...)
	}
	return messages, nil
}

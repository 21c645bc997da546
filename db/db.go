package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"neuralchat/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows        = errors.New("no rows found")
	ErrUsernameTaken = errors.New("username already taken")
)

// timestamps are stored as fixed-width UTC text so that they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000Z"

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'offline',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL REFERENCES profiles(id),
			content TEXT NOT NULL DEFAULT '',
			chat_type TEXT NOT NULL,
			receiver_id TEXT REFERENCES profiles(id),
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			file_url TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_global ON messages(chat_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return db.migrate()
}

// migrate performs auto-migration for new columns
func (db *DB) migrate() error {
	now := formatTime(time.Now())

	if !db.columnExists("profiles", "last_seen") {
		// SQLite doesn't support parameters in ALTER TABLE, use string concatenation
		alterQuery := "ALTER TABLE profiles ADD COLUMN last_seen TEXT DEFAULT '" + now + "'"
		if _, err := db.conn.Exec(alterQuery); err != nil {
			return err
		}
		if _, err := db.conn.Exec("UPDATE profiles SET last_seen = ? WHERE last_seen IS NULL", now); err != nil {
			return err
		}
	}

	return nil
}

// columnExists checks if a column exists in a table
func (db *DB) columnExists(table, column string) bool {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	var count int
	err := db.conn.QueryRow(query, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by older builds used RFC3339
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// Profile methods

func (db *DB) CreateProfile(username, password string) (models.Profile, error) {
	exists, err := db.UsernameExists(username)
	if err != nil {
		return models.Profile{}, err
	}
	if exists {
		return models.Profile{}, ErrUsernameTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Profile{}, err
	}

	now := time.Now().UTC()
	p := models.Profile{
		ID:        uuid.NewString(),
		Username:  username,
		Status:    models.StatusOffline,
		LastSeen:  now,
		CreatedAt: now,
	}
	_, err = db.conn.Exec(
		"INSERT INTO profiles (id, username, password, status, last_seen, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Username, string(hashed), p.Status, formatTime(now), formatTime(now),
	)
	if err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// Authenticate returns the profile when the credentials match.
func (db *DB) Authenticate(username, password string) (models.Profile, bool, error) {
	var hashedPassword, id string
	err := db.conn.QueryRow("SELECT id, password FROM profiles WHERE username = ?", username).Scan(&id, &hashedPassword)
	if err == sql.ErrNoRows {
		return models.Profile{}, false, nil
	}
	if err != nil {
		return models.Profile{}, false, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) != nil {
		return models.Profile{}, false, nil
	}

	p, err := db.GetProfile(id)
	if err != nil {
		return models.Profile{}, false, err
	}
	return p, true, nil
}

func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM profiles WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) GetProfile(id string) (models.Profile, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, status, COALESCE(last_seen, ''), created_at FROM profiles WHERE id = ?", id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return models.Profile{}, ErrNoRows
	}
	return p, err
}

// ListProfiles returns every profile except exclude, online first.
func (db *DB) ListProfiles(exclude string) ([]models.Profile, error) {
	rows, err := db.conn.Query(`
		SELECT id, username, status, COALESCE(last_seen, ''), created_at
		FROM profiles
		WHERE id <> ?
		ORDER BY status DESC, username ASC`, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateStatus sets status and last_seen and returns the updated profile.
func (db *DB) UpdateStatus(id, status string, t time.Time) (models.Profile, error) {
	result, err := db.conn.Exec(
		"UPDATE profiles SET status = ?, last_seen = ? WHERE id = ?",
		status, formatTime(t), id,
	)
	if err != nil {
		return models.Profile{}, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return models.Profile{}, err
	} else if n == 0 {
		return models.Profile{}, ErrNoRows
	}
	return db.GetProfile(id)
}

// Rename changes the username and returns the previous one.
func (db *DB) Rename(id, username string) (string, models.Profile, error) {
	old, err := db.GetProfile(id)
	if err != nil {
		return "", models.Profile{}, err
	}
	if old.Username == username {
		return old.Username, old, nil
	}

	exists, err := db.UsernameExists(username)
	if err != nil {
		return "", models.Profile{}, err
	}
	if exists {
		return "", models.Profile{}, ErrUsernameTaken
	}

	if _, err := db.conn.Exec("UPDATE profiles SET username = ? WHERE id = ?", username, id); err != nil {
		return "", models.Profile{}, err
	}
	p, err := db.GetProfile(id)
	return old.Username, p, err
}

// ResetStatuses marks everyone offline; used at startup since no session survives a restart.
func (db *DB) ResetStatuses() error {
	_, err := db.conn.Exec("UPDATE profiles SET status = ? WHERE status <> ?", models.StatusOffline, models.StatusOffline)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (models.Profile, error) {
	var p models.Profile
	var lastSeen, created string
	if err := s.Scan(&p.ID, &p.Username, &p.Status, &lastSeen, &created); err != nil {
		return models.Profile{}, err
	}
	if lastSeen != "" {
		p.LastSeen = parseTime(lastSeen)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

// Message methods

func (db *DB) InsertMessage(senderID, chatType, receiverID, content string, t time.Time) (models.Message, error) {
	switch chatType {
	case models.ChatGlobal:
		receiverID = ""
	case models.ChatPrivate:
		if receiverID == "" {
			return models.Message{}, fmt.Errorf("private message without receiver")
		}
	default:
		return models.Message{}, fmt.Errorf("unknown chat type %q", chatType)
	}

	m := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		Content:    content,
		ChatType:   chatType,
		ReceiverID: receiverID,
		CreatedAt:  t.UTC(),
	}
	_, err := db.conn.Exec(
		"INSERT INTO messages (id, sender_id, content, chat_type, receiver_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID, m.SenderID, m.Content, m.ChatType, nullString(receiverID), formatTime(t),
	)
	if err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (db *DB) InsertAttachment(a models.Attachment) (models.Attachment, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO attachments (id, message_id, file_name, file_type, file_size, file_url, storage_path, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MessageID, a.FileName, a.FileType, a.FileSize, a.FileURL, a.StoragePath, a.MimeType, formatTime(a.CreatedAt),
	)
	if err != nil {
		return models.Attachment{}, err
	}
	return a, nil
}

const messageColumns = `
	m.id, m.sender_id, COALESCE(p.username, ''), m.content, m.chat_type,
	COALESCE(m.receiver_id, ''), m.created_at`

// GetMessage returns the full record, sender name and attachments included.
func (db *DB) GetMessage(id string) (models.Message, error) {
	row := db.conn.QueryRow(`SELECT`+messageColumns+`
		FROM messages m LEFT JOIN profiles p ON p.id = m.sender_id
		WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return models.Message{}, ErrNoRows
	}
	if err != nil {
		return models.Message{}, err
	}

	atts, err := db.attachmentsFor([]string{m.ID})
	if err != nil {
		return models.Message{}, err
	}
	m.Attachments = atts[m.ID]
	return m, nil
}

// RecentMessages returns up to limit of the newest messages of a conversation,
// oldest first. peer == "" selects the global channel, otherwise the private
// conversation between self and peer.
func (db *DB) RecentMessages(self, peer string, limit int) ([]models.Message, error) {
	var (
		where string
		args  []any
	)
	if peer == "" {
		where = "m.chat_type = ?"
		args = []any{models.ChatGlobal}
	} else {
		where = `m.chat_type = ? AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))`
		args = []any{models.ChatPrivate, self, peer, peer, self}
	}
	args = append(args, limit)

	query := `
		SELECT id, sender_id, sender_name, content, chat_type, receiver_id, created_at FROM (
			SELECT m.rowid AS seq, m.id AS id, m.sender_id AS sender_id,
				COALESCE(p.username, '') AS sender_name, m.content AS content,
				m.chat_type AS chat_type, COALESCE(m.receiver_id, '') AS receiver_id,
				m.created_at AS created_at
			FROM messages m LEFT JOIN profiles p ON p.id = m.sender_id
			WHERE ` + where + `
			ORDER BY m.created_at DESC, m.rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	var ids []string
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	atts, err := db.attachmentsFor(ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Attachments = atts[messages[i].ID]
	}
	return messages, nil
}

func (db *DB) attachmentsFor(messageIDs []string) (map[string][]models.Attachment, error) {
	out := make(map[string][]models.Attachment)
	if len(messageIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := db.conn.Query(`
		SELECT id, message_id, file_name, file_type, file_size, file_url, storage_path, mime_type, created_at
		FROM attachments WHERE message_id IN (`+placeholders+`)
		ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		var created string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.FileName, &a.FileType, &a.FileSize,
			&a.FileURL, &a.StoragePath, &a.MimeType, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(created)
		out[a.MessageID] = append(out[a.MessageID], a)
	}
	return out, rows.Err()
}

func scanMessage(s scanner) (models.Message, error) {
	var m models.Message
	var created string
	if err := s.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.ChatType, &m.ReceiverID, &created); err != nil {
		return models.Message{}, err
	}
	m.CreatedAt = parseTime(created)
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

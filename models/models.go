package models

import "time"

// Chat types stored in messages.chat_type
const (
	ChatGlobal  = "global"
	ChatPrivate = "private"
)

// Profile statuses
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Attachment kinds
const (
	KindImage = "image"
	KindFile  = "file"
)

type Profile struct {
	ID        string
	Username  string
	Password  string // hashed
	Status    string
	LastSeen  time.Time
	CreatedAt time.Time
}

type Message struct {
	ID          string
	SenderID    string
	SenderName  string // joined from profiles, empty on raw rows
	Content     string
	ChatType    string
	ReceiverID  string // empty for global messages
	CreatedAt   time.Time
	Attachments []Attachment
}

// Peer returns the other participant of a private message as seen by self.
func (m Message) Peer(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether user takes part in a private message.
func (m Message) Involves(user string) bool {
	return m.SenderID == user || m.ReceiverID == user
}

type Attachment struct {
	ID          string
	MessageID   string
	FileName    string
	FileType    string // "image" or "file"
	FileSize    int64
	FileURL     string
	StoragePath string
	MimeType    string
	CreatedAt   time.Time
}

// InsertEvent is the partial row pushed by the change feed on message INSERT.
type InsertEvent struct {
	ID         string
	SenderID   string
	ChatType   string
	ReceiverID string
}

// ProfileEvent is pushed on profile UPDATE.
type ProfileEvent struct {
	Profile
	OldUsername string
}

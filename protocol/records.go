package protocol

import (
	"fmt"
	"strconv"
	"time"

	"neuralchat/models"
)

// TimeFormat is used for every timestamp on the wire.
const TimeFormat = time.RFC3339Nano

// Record layouts (flat, one escaped field each):
//
//	profile:    id|username|status|last_seen
//	message:    id|sender_id|sender_name|chat_type|receiver_id|created_at|content|n_att
//	attachment: id|file_name|file_type|file_size|file_url|storage_path|mime_type
//
// n_att attachment records follow their message.

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

func AppendProfile(dst []string, p models.Profile) []string {
	return append(dst, p.ID, p.Username, p.Status, FormatTime(p.LastSeen))
}

func AppendMessage(dst []string, m models.Message) []string {
	dst = append(dst,
		m.ID, m.SenderID, m.SenderName, m.ChatType, m.ReceiverID,
		FormatTime(m.CreatedAt), m.Content, strconv.Itoa(len(m.Attachments)))
	for _, a := range m.Attachments {
		dst = append(dst,
			a.ID, a.FileName, a.FileType, strconv.FormatInt(a.FileSize, 10),
			a.FileURL, a.StoragePath, a.MimeType)
	}
	return dst
}

// Reader walks a flat field list. The first decoding error sticks and
// every later read returns a zero value.
type Reader struct {
	fields []string
	pos    int
	err    error
}

func NewReader(fields []string) *Reader {
	return &Reader{fields: fields}
}

func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread fields.
func (r *Reader) Remaining() int { return len(r.fields) - r.pos }

func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	if r.pos >= len(r.fields) {
		r.err = fmt.Errorf("field %d: %w", r.pos, ErrInvalidPacket)
		return ""
	}
	s := r.fields[r.pos]
	r.pos++
	return s
}

func (r *Reader) Int() int64 {
	s := r.String()
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", r.pos-1, err)
		return 0
	}
	return n
}

func (r *Reader) Time() time.Time {
	s := r.String()
	if r.err != nil || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", r.pos-1, err)
		return time.Time{}
	}
	return t
}

func (r *Reader) Profile() models.Profile {
	return models.Profile{
		ID:       r.String(),
		Username: r.String(),
		Status:   r.String(),
		LastSeen: r.Time(),
	}
}

func (r *Reader) Message() models.Message {
	m := models.Message{
		ID:         r.String(),
		SenderID:   r.String(),
		SenderName: r.String(),
		ChatType:   r.String(),
		ReceiverID: r.String(),
		CreatedAt:  r.Time(),
		Content:    r.String(),
	}
	n := r.Int()
	if n < 0 || int(n) > r.Remaining() {
		if r.err == nil {
			r.err = fmt.Errorf("attachment count %d: %w", n, ErrInvalidPacket)
		}
		return m
	}
	for i := int64(0); i < n && r.err == nil; i++ {
		m.Attachments = append(m.Attachments, models.Attachment{
			ID:          r.String(),
			MessageID:   m.ID,
			FileName:    r.String(),
			FileType:    r.String(),
			FileSize:    r.Int(),
			FileURL:     r.String(),
			StoragePath: r.String(),
			MimeType:    r.String(),
		})
	}
	return m
}

// Profiles decodes "n|profile..." as produced for the users reply.
func (r *Reader) Profiles() []models.Profile {
	n := r.Int()
	var out []models.Profile
	for i := int64(0); i < n && r.err == nil; i++ {
		out = append(out, r.Profile())
	}
	return out
}

// Messages decodes "n|message..." as produced for the hist reply.
func (r *Reader) Messages() []models.Message {
	n := r.Int()
	var out []models.Message
	for i := int64(0); i < n && r.err == nil; i++ {
		out = append(out, r.Message())
	}
	return out
}

package protocol

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuralchat/models"
)

func TestParsePacketEscapes(t *testing.T) {
	line := FormatPacket(TypeSend, "global", "a|b,c\\d\nnext")
	assert.Equal(t, "send|global|a\\|b\\,c\\\\d\\nnext\n", line)

	pkt, err := ParsePacket(line)
	require.NoError(t, err)
	assert.Equal(t, TypeSend, pkt.Type)
	require.Len(t, pkt.Fields, 2)
	assert.Equal(t, "global", pkt.Field(0))
	assert.Equal(t, "a|b,c\\d\nnext", pkt.Field(1))
	assert.Equal(t, "", pkt.Field(5))
}

func TestParsePacketEmptyFields(t *testing.T) {
	pkt, err := ParsePacket("ins|m1|u1|global|\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "u1", "global", ""}, pkt.Fields)

	pkt, err = ParsePacket("ping\n")
	require.NoError(t, err)
	assert.Equal(t, TypePing, pkt.Type)
	assert.Empty(t, pkt.Fields)
}

func TestParsePacketInvalid(t *testing.T) {
	_, err := ParsePacket("\n")
	assert.ErrorIs(t, err, ErrInvalidPacket)

	_, err = ParsePacket("|x\n")
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestUnescapeTrailingBackslash(t *testing.T) {
	assert.Equal(t, "abc\\", unescape("abc\\"))
	assert.Equal(t, "\\q", unescape("\\q"))
}

func TestMessageRecordWithAttachments(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	msg := models.Message{
		ID:         "m1",
		SenderID:   "u1",
		SenderName: "neo",
		ChatType:   models.ChatPrivate,
		ReceiverID: "u2",
		CreatedAt:  created,
		Content:    "see | attached, ok",
		Attachments: []models.Attachment{
			{ID: "a1", FileName: "cat.png", FileType: models.KindImage, FileSize: 2048, FileURL: "http://x/cat.png", StoragePath: "u1/1_cat.png", MimeType: "image/png"},
			{ID: "a2", FileName: "notes.txt", FileType: models.KindFile, FileSize: 10, FileURL: "http://x/notes.txt", StoragePath: "u1/2_notes.txt", MimeType: "text/plain"},
		},
	}
	trailing := models.Profile{ID: "u3", Username: "trinity", Status: models.StatusOnline}

	fields := AppendMessage(nil, msg)
	fields = AppendProfile(fields, trailing)

	// go through the wire codec, not just the slice
	pkt, err := ParsePacket(FormatPacket(TypeRecord, fields...))
	require.NoError(t, err)

	r := NewReader(pkt.Fields)
	got := r.Message()
	prof := r.Profile()
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())

	assert.Equal(t, "see | attached, ok", got.Content)
	assert.True(t, got.CreatedAt.Equal(created))
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "m1", got.Attachments[1].MessageID)
	assert.Equal(t, int64(2048), got.Attachments[0].FileSize)
	assert.Equal(t, "trinity", prof.Username)
	assert.True(t, prof.LastSeen.IsZero())
}

func TestReaderShortInput(t *testing.T) {
	r := NewReader([]string{"m1", "u1", "neo", "global", "", FormatTime(time.Now()), "hi", "3"})
	r.Message()
	require.Error(t, r.Err())
	assert.ErrorIs(t, r.Err(), ErrInvalidPacket)

	r = NewReader([]string{"2", "u1", "neo", "online"})
	profiles := r.Profiles()
	assert.Len(t, profiles, 1)
	assert.Error(t, r.Err())
	assert.Equal(t, "", r.String())
}

func TestReaderBadNumber(t *testing.T) {
	r := NewReader([]string{"many"})
	assert.Nil(t, r.Messages())
	require.Error(t, r.Err())
	assert.True(t, strings.Contains(r.Err().Error(), "field 0"))
}

func TestIsPush(t *testing.T) {
	for _, typ := range []string{TypeInsert, TypeUpdate, TypePSync, TypePJoin, TypePLeave, TypePong, TypeBye} {
		assert.True(t, IsPush(typ), typ)
	}
	for _, typ := range []string{TypeOk, TypeFail, TypeHist, TypeRecord, TypeUsers, TypeProfile} {
		assert.False(t, IsPush(typ), typ)
	}
}

func TestLineReaderDropsOversizedLines(t *testing.T) {
	input := "ping\r\n" + strings.Repeat("x", 100) + "\nsend|global|hi  \n" + "tail"
	r := NewLineReader(strings.NewReader(input), 32)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ping", line)

	_, err = r.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "send|global|hi  ", line)

	// an unterminated tail is not a packet
	_, err = r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

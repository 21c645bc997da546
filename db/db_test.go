package db

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuralchat/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func mustProfile(t *testing.T, database *DB, name string) models.Profile {
	t.Helper()
	p, err := database.CreateProfile(name, "password123")
	require.NoError(t, err)
	return p
}

func TestCreateAndAuthenticate(t *testing.T) {
	database := setupTestDB(t)

	p := mustProfile(t, database, "neo")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.StatusOffline, p.Status)

	_, err := database.CreateProfile("neo", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	got, ok, err := database.Authenticate("neo", "password123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)

	_, ok, err = database.Authenticate("neo", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = database.Authenticate("ghost", "password123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfilesStatusAndRename(t *testing.T) {
	database := setupTestDB(t)
	neo := mustProfile(t, database, "neo")
	trinity := mustProfile(t, database, "trinity")
	morpheus := mustProfile(t, database, "morpheus")

	seen := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	updated, err := database.UpdateStatus(trinity.ID, models.StatusOnline, seen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, updated.Status)
	assert.True(t, updated.LastSeen.Equal(seen))

	peers, err := database.ListProfiles(neo.ID)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, trinity.ID, peers[0].ID, "online profiles come first")
	assert.Equal(t, morpheus.ID, peers[1].ID)

	old, renamed, err := database.Rename(trinity.ID, "trin")
	require.NoError(t, err)
	assert.Equal(t, "trinity", old)
	assert.Equal(t, "trin", renamed.Username)

	_, _, err = database.Rename(neo.ID, "morpheus")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = database.GetProfile("missing")
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = database.UpdateStatus("missing", models.StatusOnline, seen)
	assert.ErrorIs(t, err, ErrNoRows)

	require.NoError(t, database.ResetStatuses())
	p, err := database.GetProfile(trinity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, p.Status)
}

func TestRecentMessagesGlobalKeepsNewest(t *testing.T) {
	database := setupTestDB(t)
	neo := mustProfile(t, database, "neo")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		_, err := database.InsertMessage(neo.ID, models.ChatGlobal, "", "msg "+strconv.Itoa(i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	msgs, err := database.RecentMessages(neo.ID, "", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	assert.Equal(t, "msg 10", msgs[0].Content)
	assert.Equal(t, "msg 59", msgs[49].Content)
	assert.Equal(t, "neo", msgs[0].SenderName)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestRecentMessagesPrivatePair(t *testing.T) {
	database := setupTestDB(t)
	neo := mustProfile(t, database, "neo")
	trinity := mustProfile(t, database, "trinity")
	smith := mustProfile(t, database, "smith")

	now := time.Now()
	_, err := database.InsertMessage(neo.ID, models.ChatPrivate, trinity.ID, "hi trinity", now)
	require.NoError(t, err)
	_, err = database.InsertMessage(trinity.ID, models.ChatPrivate, neo.ID, "hi neo", now.Add(time.Second))
	require.NoError(t, err)
	_, err = database.InsertMessage(smith.ID, models.ChatPrivate, neo.ID, "mr anderson", now.Add(2*time.Second))
	require.NoError(t, err)
	_, err = database.InsertMessage(neo.ID, models.ChatGlobal, "", "hello world", now.Add(3*time.Second))
	require.NoError(t, err)

	msgs, err := database.RecentMessages(neo.ID, trinity.ID, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi trinity", msgs[0].Content)
	assert.Equal(t, "hi neo", msgs[1].Content)

	msgs, err = database.RecentMessages(neo.ID, "", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "", msgs[0].ReceiverID)
}

func TestInsertMessageValidation(t *testing.T) {
	database := setupTestDB(t)
	neo := mustProfile(t, database, "neo")

	_, err := database.InsertMessage(neo.ID, models.ChatPrivate, "", "x", time.Now())
	assert.Error(t, err)
	_, err = database.InsertMessage(neo.ID, "group", "", "x", time.Now())
	assert.Error(t, err)

	m, err := database.InsertMessage(neo.ID, models.ChatGlobal, "ignored", "x", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "", m.ReceiverID)
}

func TestGetMessageWithAttachments(t *testing.T) {
	database := setupTestDB(t)
	neo := mustProfile(t, database, "neo")

	m, err := database.InsertMessage(neo.ID, models.ChatGlobal, "", "", time.Now())
	require.NoError(t, err)

	_, err = database.InsertAttachment(models.Attachment{
		MessageID:   m.ID,
		FileName:    "cat.png",
		FileType:    models.KindImage,
		FileSize:    1234,
		FileURL:     "http://localhost:3216/storage/v1/object/public/chat-images/x/1_cat.png",
		StoragePath: neo.ID + "/1_cat.png",
		MimeType:    "image/png",
	})
	require.NoError(t, err)

	full, err := database.GetMessage(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "neo", full.SenderName)
	require.Len(t, full.Attachments, 1)
	assert.Equal(t, "cat.png", full.Attachments[0].FileName)
	assert.Equal(t, int64(1234), full.Attachments[0].FileSize)

	_, err = database.GetMessage("missing")
	assert.ErrorIs(t, err, ErrNoRows)
}

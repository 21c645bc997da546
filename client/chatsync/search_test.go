package chatsync

import (
	"testing"

	"neuralchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", SenderName: "neo", Content: "Whoa. whoa!"},
		{ID: "2", SenderName: "trinity", Content: "a.b (c)"},
		{ID: "3", SenderName: "tank", Content: "📎 manual.pdf", Attachments: []models.Attachment{{FileName: "manual.pdf"}}},
		{ID: "4", SenderName: "tank", Attachments: []models.Attachment{{FileName: "construct.png"}}},
	}

	results := Search(msgs, "whoa")
	require.Len(t, results, 1)
	assert.Equal(t, "neo", results[0].Sender)
	assert.Equal(t, [][2]int{{0, 4}, {6, 10}}, results[0].Spans)

	results = Search(msgs, "(c)")
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].MessageID)

	results = Search(msgs, "CONSTRUCT")
	require.Len(t, results, 1)
	assert.Equal(t, "construct.png", results[0].Text)

	assert.Len(t, Search(msgs, "manual"), 1)
	assert.Empty(t, Search(msgs, ""))
	assert.Empty(t, Search(msgs, "spoon"))
}

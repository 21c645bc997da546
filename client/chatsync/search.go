package chatsync

import (
	"regexp"

	"neuralchat/models"
)

// SearchResult is a message matching a search with the byte spans of each
// match in Text.
type SearchResult struct {
	MessageID string
	Sender    string
	Text      string
	Spans     [][2]int
}

// Search finds query in msgs, case-insensitively and literally. Attachment
// names are searched too.
func Search(msgs []models.Message, query string) []SearchResult {
	if query == "" {
		return nil
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))

	var out []SearchResult
	for _, m := range msgs {
		text := m.Content
		for _, a := range m.Attachments {
			if text != "" {
				text += " "
			}
			text += a.FileName
		}

		idx := re.FindAllStringIndex(text, -1)
		if len(idx) == 0 {
			continue
		}
		spans := make([][2]int, len(idx))
		for i, loc := range idx {
			spans[i] = [2]int{loc[0], loc[1]}
		}
		out = append(out, SearchResult{
			MessageID: m.ID,
			Sender:    m.SenderName,
			Text:      text,
			Spans:     spans,
		})
	}
	return out
}

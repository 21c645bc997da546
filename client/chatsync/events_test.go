package chatsync

import (
	"testing"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"

	"github.com/stretchr/testify/assert"
)

func TestEventFromPacket(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pkt  *wire.Packet
		want Event
		ok   bool
	}{
		{
			name: "insert global",
			pkt:  &wire.Packet{Type: wire.TypeInsert, Fields: []string{"m1", "u2", models.ChatGlobal, ""}},
			want: MessageInserted{ID: "m1", SenderID: "u2", ChatType: models.ChatGlobal},
			ok:   true,
		},
		{
			name: "insert private",
			pkt:  &wire.Packet{Type: wire.TypeInsert, Fields: []string{"m1", "u2", models.ChatPrivate, "u1"}},
			want: MessageInserted{ID: "m1", SenderID: "u2", ChatType: models.ChatPrivate, ReceiverID: "u1"},
			ok:   true,
		},
		{
			name: "insert short",
			pkt:  &wire.Packet{Type: wire.TypeInsert, Fields: []string{"m1"}},
		},
		{
			name: "profile update",
			pkt:  &wire.Packet{Type: wire.TypeUpdate, Fields: []string{"u2", "smith", "agent", models.StatusOnline, wire.FormatTime(seen)}},
			want: ProfileUpdated{
				Profile:     models.Profile{ID: "u2", Username: "smith", Status: models.StatusOnline, LastSeen: seen},
				OldUsername: "agent",
			},
			ok: true,
		},
		{
			name: "presence sync",
			pkt:  &wire.Packet{Type: wire.TypePSync, Fields: []string{"2", "u1", "u2"}},
			want: PresenceSync{Keys: []string{"u1", "u2"}},
			ok:   true,
		},
		{
			name: "presence sync empty",
			pkt:  &wire.Packet{Type: wire.TypePSync, Fields: []string{"0"}},
			want: PresenceSync{Keys: []string{}},
			ok:   true,
		},
		{
			name: "presence sync bad count",
			pkt:  &wire.Packet{Type: wire.TypePSync, Fields: []string{"3", "u1"}},
		},
		{
			name: "join",
			pkt:  &wire.Packet{Type: wire.TypePJoin, Fields: []string{"u3"}},
			want: PresenceJoin{Key: "u3"},
			ok:   true,
		},
		{
			name: "leave",
			pkt:  &wire.Packet{Type: wire.TypePLeave, Fields: []string{"u3"}},
			want: PresenceLeave{Key: "u3"},
			ok:   true,
		},
		{
			name: "reply",
			pkt:  &wire.Packet{Type: wire.TypeOk, Fields: []string{"send", "m1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EventFromPacket(tt.pkt)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

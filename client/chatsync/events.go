package chatsync

import (
	"strconv"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"
)

// Event is anything the owner loop reacts to: user actions, service
// results and realtime pushes.
type Event interface{ event() }

// User actions

type Started struct{}

type SwitchConversation struct{ Target string }

type SubmitRequested struct{ Text string }

type AttachRequested struct{ File LocalFile }

type ReloadPeers struct{}

// Realtime pushes

// MessageInserted is the partial payload of the insert feed.
type MessageInserted struct {
	ID         string
	SenderID   string
	ChatType   string
	ReceiverID string
}

type ProfileUpdated struct {
	Profile     models.Profile
	OldUsername string
}

type PresenceSync struct{ Keys []string }

type PresenceJoin struct{ Key string }

type PresenceLeave struct{ Key string }

// Service results

type HistoryLoaded struct {
	Generation uint64
	Selector   string
	Messages   []models.Message
}

type HistoryFailed struct {
	Generation uint64
	Selector   string
	Err        error
}

type MessageFetched struct{ Message models.Message }

type MessageFetchFailed struct {
	ID  string
	Err error
}

type PeersLoaded struct{ Peers []models.Profile }

type SelfLoaded struct{ Profile models.Profile }

type PeersFailed struct{ Err error }

type SendSucceeded struct{ ID string }

type SendFailed struct{ Err error }

// Notice asks for a system line in the message pane.
type Notice struct {
	Text  string
	Error bool
}

func (Started) event()            {}
func (SwitchConversation) event() {}
func (SubmitRequested) event()    {}
func (AttachRequested) event()    {}
func (ReloadPeers) event()        {}
func (MessageInserted) event()    {}
func (ProfileUpdated) event()     {}
func (PresenceSync) event()       {}
func (PresenceJoin) event()       {}
func (PresenceLeave) event()      {}
func (HistoryLoaded) event()      {}
func (HistoryFailed) event()      {}
func (MessageFetched) event()     {}
func (MessageFetchFailed) event() {}
func (PeersLoaded) event()        {}
func (PeersFailed) event()        {}
func (SelfLoaded) event()         {}
func (SendSucceeded) event()      {}
func (SendFailed) event()         {}
func (Notice) event()             {}

// EventFromPacket decodes a realtime push into its typed event.
func EventFromPacket(pkt *wire.Packet) (Event, bool) {
	switch pkt.Type {
	case wire.TypeInsert:
		if len(pkt.Fields) < 3 {
			return nil, false
		}
		return MessageInserted{
			ID:         pkt.Field(0),
			SenderID:   pkt.Field(1),
			ChatType:   pkt.Field(2),
			ReceiverID: pkt.Field(3),
		}, true

	case wire.TypeUpdate:
		if len(pkt.Fields) < 4 {
			return nil, false
		}
		seen, _ := time.Parse(wire.TimeFormat, pkt.Field(4))
		return ProfileUpdated{
			Profile: models.Profile{
				ID:       pkt.Field(0),
				Username: pkt.Field(1),
				Status:   pkt.Field(3),
				LastSeen: seen,
			},
			OldUsername: pkt.Field(2),
		}, true

	case wire.TypePSync:
		n, err := strconv.Atoi(pkt.Field(0))
		if err != nil || n < 0 || n > len(pkt.Fields)-1 {
			return nil, false
		}
		keys := make([]string, n)
		copy(keys, pkt.Fields[1:1+n])
		return PresenceSync{Keys: keys}, true

	case wire.TypePJoin:
		return PresenceJoin{Key: pkt.Field(0)}, pkt.Field(0) != ""

	case wire.TypePLeave:
		return PresenceLeave{Key: pkt.Field(0)}, pkt.Field(0) != ""
	}
	return nil, false
}

package chatsync

import (
	"strings"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"
)

// Broadcast selects the shared channel.
const Broadcast = wire.Broadcast

// BroadcastTitle is the display name of the shared channel.
const BroadcastTitle = "GLOBAL NETWORK"

// Notices shown in the message pane.
const (
	noticeEmptyBroadcast = "Global Network Chat - Start broadcasting"
	noticeEmptyPrivate   = "Private chat started"
	noticeSecure         = "Secure connection established"
	noticeHistoryError   = "Error loading messages"
	noticeMessageError   = "Error loading message"
	noticePeersError     = "Error loading users"
	noticeSendError      = "Error sending message"
)

// LocalFile is a validated file queued for upload.
type LocalFile struct {
	Path     string
	Name     string
	Size     int64
	Kind     string // models.KindImage or models.KindFile
	MimeType string
}

// PeerView is one row of the peer list.
type PeerView struct {
	ID       string
	Username string
	LastSeen time.Time
	Online   bool
	Unread   int
}

// State is the client's view of the chat. Only the owner loop touches it.
type State struct {
	Self       models.Profile
	Active     string
	Generation uint64 // tag of the history fetch whose result is wanted
	Unread     map[string]int
	Online     map[string]bool
	Peers      []models.Profile
	Rendered   []models.Message

	rendered map[string]struct{}
	welcome  bool
}

func NewState(self models.Profile) *State {
	return &State{
		Self:     self,
		Active:   Broadcast,
		Unread:   make(map[string]int),
		Online:   make(map[string]bool),
		rendered: make(map[string]struct{}),
	}
}

// Apply folds one event into the state and returns what has to happen
// next: render effects for the view and commands for the service.
func (s *State) Apply(ev Event) []Effect {
	switch ev := ev.(type) {
	case Started:
		s.welcome = true
		return append([]Effect{FetchPeers{}, FetchSelf{ID: s.Self.ID}}, s.switchTo(Broadcast)...)

	case SwitchConversation:
		return s.switchTo(ev.Target)

	case HistoryLoaded:
		if ev.Generation != s.Generation || ev.Selector != s.Active {
			return nil
		}
		return s.historyLoaded(ev.Messages)

	case HistoryFailed:
		if ev.Generation != s.Generation {
			return nil
		}
		effects := []Effect{ShowNotice{Text: noticeHistoryError, Error: true}}
		return append(effects, s.welcomeNotices()...)

	case SubmitRequested:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return nil
		}
		return []Effect{InsertMessage{Selector: s.Active, Content: text}}

	case AttachRequested:
		return []Effect{
			ShowNotice{Text: "Uploading " + ev.File.Name + "..."},
			UploadAttachment{Selector: s.Active, File: ev.File},
		}

	case SendSucceeded:
		return []Effect{ClearInput{}}

	case SendFailed:
		return []Effect{ShowNotice{Text: noticeSendError, Error: true}}

	case MessageInserted:
		if _, ok := s.rendered[ev.ID]; ok {
			return nil
		}
		switch ev.ChatType {
		case models.ChatGlobal:
			if s.Active != Broadcast {
				return nil
			}
		case models.ChatPrivate:
			if ev.SenderID != s.Self.ID && ev.ReceiverID != s.Self.ID {
				return nil
			}
		default:
			return nil
		}
		return []Effect{FetchMessage{ID: ev.ID}}

	case MessageFetched:
		return s.route(ev.Message)

	case MessageFetchFailed:
		return []Effect{ShowNotice{Text: noticeMessageError, Error: true}}

	case PresenceSync:
		s.Online = make(map[string]bool, len(ev.Keys))
		for _, k := range ev.Keys {
			s.Online[k] = true
		}
		effects := make([]Effect, 0, len(s.Peers)+2)
		for _, p := range s.Peers {
			effects = append(effects, UpdatePeerStatus{PeerID: p.ID, Online: s.Online[p.ID]})
		}
		if s.Active != Broadcast {
			effects = append(effects, s.header())
		}
		return append(effects, UpdateOnlineCount{Count: len(s.Online)})

	case PresenceJoin:
		s.Online[ev.Key] = true
		return s.presenceChanged(ev.Key)

	case PresenceLeave:
		delete(s.Online, ev.Key)
		return s.presenceChanged(ev.Key)

	case ProfileUpdated:
		return s.profileUpdated(ev)

	case SelfLoaded:
		if ev.Profile.ID != s.Self.ID {
			return nil
		}
		return s.profileUpdated(ProfileUpdated{Profile: ev.Profile})

	case PeersLoaded:
		s.Peers = ev.Peers
		effects := []Effect{UpdatePeers{Peers: s.PeerViews(), Active: s.Active}}
		if s.Active != Broadcast {
			effects = append(effects, s.header())
		}
		return effects

	case PeersFailed:
		return []Effect{ShowNotice{Text: noticePeersError, Error: true}}

	case ReloadPeers:
		return []Effect{FetchPeers{}}

	case Notice:
		return []Effect{ShowNotice{Text: ev.Text, Error: ev.Error}}
	}
	return nil
}

func (s *State) switchTo(target string) []Effect {
	if target == "" {
		target = Broadcast
	}
	s.Active = target
	s.Generation++
	s.Rendered = nil
	s.rendered = make(map[string]struct{})

	effects := []Effect{ClearMessages{}, s.header()}
	effects = append(effects, s.markRead(target)...)
	return append(effects,
		UpdatePeers{Peers: s.PeerViews(), Active: s.Active},
		FetchHistory{Generation: s.Generation, Selector: target},
	)
}

// markRead clears the unread counter of peer.
func (s *State) markRead(peer string) []Effect {
	if s.Unread[peer] == 0 {
		return nil
	}
	delete(s.Unread, peer)
	return []Effect{UpdateBadge{PeerID: peer, Count: 0}}
}

func (s *State) historyLoaded(msgs []models.Message) []Effect {
	// messages pushed while the fetch was in flight go after the history
	live := s.Rendered
	s.Rendered = nil
	s.rendered = make(map[string]struct{})

	var effects []Effect
	if len(live) > 0 {
		effects = append(effects, ClearMessages{})
	}
	for _, m := range msgs {
		effects = append(effects, s.render(m)...)
	}
	for _, m := range live {
		effects = append(effects, s.render(m)...)
	}

	if len(s.Rendered) == 0 {
		text := noticeEmptyPrivate
		if s.Active == Broadcast {
			text = noticeEmptyBroadcast
		}
		effects = append(effects, ShowNotice{Text: text})
	}
	return append(effects, s.welcomeNotices()...)
}

func (s *State) welcomeNotices() []Effect {
	if !s.welcome {
		return nil
	}
	s.welcome = false
	return []Effect{
		ShowNotice{Text: "Welcome to the Neural Network, " + strings.ToUpper(s.Self.Username)},
		ShowNotice{Text: noticeSecure},
	}
}

// render appends m unless it is already in the view.
func (s *State) render(m models.Message) []Effect {
	if _, ok := s.rendered[m.ID]; ok {
		return nil
	}
	s.rendered[m.ID] = struct{}{}
	s.Rendered = append(s.Rendered, m)
	return []Effect{RenderMessage{Message: m}}
}

// route decides what a freshly inserted message does to the view.
func (s *State) route(m models.Message) []Effect {
	switch m.ChatType {
	case models.ChatGlobal:
		if s.Active == Broadcast {
			return s.render(m)
		}
		return nil

	case models.ChatPrivate:
		if !m.Involves(s.Self.ID) {
			return nil
		}
		other := m.Peer(s.Self.ID)
		if other == s.Active {
			return s.render(m)
		}
		if m.SenderID == other && other != s.Self.ID {
			s.Unread[other]++
			return []Effect{
				UpdateBadge{PeerID: other, Count: s.Unread[other]},
				Notify{From: s.displayName(m), Text: m.Content},
			}
		}
	}
	return nil
}

func (s *State) presenceChanged(key string) []Effect {
	effects := []Effect{UpdatePeerStatus{PeerID: key, Online: s.Online[key]}}
	if key == s.Active {
		effects = append(effects, s.header())
	}
	return append(effects, UpdateOnlineCount{Count: len(s.Online)})
}

func (s *State) profileUpdated(ev ProfileUpdated) []Effect {
	p := ev.Profile
	if p.ID == s.Self.ID {
		if p.Username == s.Self.Username {
			return nil
		}
		s.Self.Username = p.Username
		return []Effect{UpdateSelf{Username: p.Username}}
	}

	i := s.peerIndex(p.ID)
	if i < 0 || (ev.OldUsername != "" && ev.OldUsername != p.Username) {
		// someone new or renamed: reload the list
		return []Effect{FetchPeers{}}
	}

	s.Peers[i].Status = p.Status
	s.Peers[i].LastSeen = p.LastSeen
	return []Effect{UpdatePeers{Peers: s.PeerViews(), Active: s.Active}}
}

func (s *State) peerIndex(id string) int {
	for i, p := range s.Peers {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) displayName(m models.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	if i := s.peerIndex(m.SenderID); i >= 0 {
		return s.Peers[i].Username
	}
	return "Unknown"
}

func (s *State) header() UpdateHeader {
	if s.Active == Broadcast {
		return UpdateHeader{Title: BroadcastTitle, Online: true, Broadcast: true}
	}
	title := s.Active
	if i := s.peerIndex(s.Active); i >= 0 {
		title = s.Peers[i].Username
	}
	return UpdateHeader{Title: strings.ToUpper(title), Online: s.Online[s.Active]}
}

// PeerViews projects the peer list with presence and unread counts.
func (s *State) PeerViews() []PeerView {
	out := make([]PeerView, 0, len(s.Peers))
	for _, p := range s.Peers {
		out = append(out, PeerView{
			ID:       p.ID,
			Username: p.Username,
			LastSeen: p.LastSeen,
			Online:   s.Online[p.ID],
			Unread:   s.Unread[p.ID],
		})
	}
	return out
}

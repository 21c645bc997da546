package chatsync

import (
	"testing"
	"time"

	"neuralchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	self = models.Profile{ID: "u1", Username: "neo", Status: models.StatusOnline}
	p1   = models.Profile{ID: "p1", Username: "trinity", Status: models.StatusOnline}
	p2   = models.Profile{ID: "p2", Username: "morpheus", Status: models.StatusOffline}
)

func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func newTestState(t *testing.T) *State {
	t.Helper()
	st := NewState(self)
	st.Apply(PeersLoaded{Peers: []models.Profile{p1, p2}})
	return st
}

func private(id, from, to, text string) models.Message {
	return models.Message{
		ID:         id,
		SenderID:   from,
		ChatType:   models.ChatPrivate,
		ReceiverID: to,
		Content:    text,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func global(id, from, text string) models.Message {
	return models.Message{ID: id, SenderID: from, ChatType: models.ChatGlobal, Content: text}
}

func renderedIDs(st *State) []string {
	ids := make([]string, 0, len(st.Rendered))
	for _, m := range st.Rendered {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestSwitchClearsUnread(t *testing.T) {
	st := newTestState(t)
	st.Apply(MessageFetched{Message: private("m1", "p1", "u1", "hi")})
	st.Apply(MessageFetched{Message: private("m2", "p2", "u1", "yo")})
	require.Equal(t, 1, st.Unread["p1"])
	require.Equal(t, 1, st.Unread["p2"])

	for _, target := range []string{"p1", Broadcast, "p2", "p2", "p1"} {
		effects := st.Apply(SwitchConversation{Target: target})
		assert.Equal(t, target, st.Active)
		assert.Zero(t, st.Unread[target])
		assert.NotEmpty(t, effectsOf[FetchHistory](effects))
	}
	assert.Zero(t, st.Unread["p2"])
}

func TestPrivateMessageRouting(t *testing.T) {
	msg := private("m1", "p1", "u1", "wake up")

	tests := []struct {
		name   string
		active string
		badge  int
		render bool
	}{
		{"broadcast active", Broadcast, 1, false},
		{"sender active", "p1", 0, true},
		{"other peer active", "p2", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestState(t)
			st.Apply(SwitchConversation{Target: tt.active})

			effects := st.Apply(MessageFetched{Message: msg})

			assert.Equal(t, tt.badge, st.Unread["p1"])
			assert.Equal(t, tt.render, len(effectsOf[RenderMessage](effects)) == 1)
			if tt.badge > 0 {
				assert.Equal(t, []UpdateBadge{{PeerID: "p1", Count: 1}}, effectsOf[UpdateBadge](effects))
				require.Len(t, effectsOf[Notify](effects), 1)
				assert.Equal(t, "trinity", effectsOf[Notify](effects)[0].From)
			}
		})
	}
}

func TestOwnPrivateMessageNoBadge(t *testing.T) {
	st := newTestState(t)
	effects := st.Apply(MessageFetched{Message: private("m1", "u1", "p1", "hello")})
	assert.Empty(t, effects)
	assert.Zero(t, st.Unread["p1"])

	st.Apply(SwitchConversation{Target: "p1"})
	effects = st.Apply(MessageFetched{Message: private("m2", "u1", "p1", "again")})
	assert.Len(t, effectsOf[RenderMessage](effects), 1)
}

func TestPrivateMessageForOthersIgnored(t *testing.T) {
	st := newTestState(t)
	ev := MessageInserted{ID: "m1", SenderID: "p1", ChatType: models.ChatPrivate, ReceiverID: "p2"}
	assert.Empty(t, st.Apply(ev))
	assert.Empty(t, st.Apply(MessageFetched{Message: private("m1", "p1", "p2", "psst")}))
	assert.Empty(t, st.Unread)
}

func TestBroadcastMessageRouting(t *testing.T) {
	msg := global("g1", "p1", "hello world")

	st := newTestState(t)
	effects := st.Apply(MessageInserted{ID: "g1", SenderID: "p1", ChatType: models.ChatGlobal})
	assert.Equal(t, []FetchMessage{{ID: "g1"}}, effectsOf[FetchMessage](effects))
	effects = st.Apply(MessageFetched{Message: msg})
	assert.Len(t, effectsOf[RenderMessage](effects), 1)
	assert.Empty(t, effectsOf[UpdateBadge](effects))

	st.Apply(SwitchConversation{Target: "p1"})
	assert.Empty(t, st.Apply(MessageInserted{ID: "g2", SenderID: "p1", ChatType: models.ChatGlobal}))
	assert.Empty(t, st.Apply(MessageFetched{Message: global("g2", "p1", "late")}))
	assert.Empty(t, st.Unread)
}

func TestBlankSubmitIgnored(t *testing.T) {
	st := newTestState(t)
	assert.Empty(t, st.Apply(SubmitRequested{Text: ""}))
	assert.Empty(t, st.Apply(SubmitRequested{Text: "   "}))

	effects := st.Apply(SubmitRequested{Text: "  there is no spoon "})
	assert.Equal(t, []Effect{InsertMessage{Selector: Broadcast, Content: "there is no spoon"}}, effects)
}

func TestBadgeThenSwitchLoadsHistory(t *testing.T) {
	st := newTestState(t)
	effects := st.Apply(MessageFetched{Message: private("m3", "p1", "u1", "follow")})
	assert.Equal(t, 1, st.Unread["p1"])
	assert.Empty(t, effectsOf[RenderMessage](effects))

	effects = st.Apply(SwitchConversation{Target: "p1"})
	assert.Zero(t, st.Unread["p1"])
	assert.Contains(t, effects, UpdateBadge{PeerID: "p1", Count: 0})
	fetch := effectsOf[FetchHistory](effects)
	require.Len(t, fetch, 1)
	assert.Equal(t, "p1", fetch[0].Selector)

	history := []models.Message{
		private("m1", "u1", "p1", "knock"),
		private("m2", "p1", "u1", "knock"),
		private("m3", "p1", "u1", "follow"),
	}
	effects = st.Apply(HistoryLoaded{Generation: fetch[0].Generation, Selector: "p1", Messages: history})
	assert.Len(t, effectsOf[RenderMessage](effects), 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, renderedIDs(st))
}

func TestPresenceUpdates(t *testing.T) {
	st := newTestState(t)
	st.Apply(SwitchConversation{Target: "p2"})

	effects := st.Apply(PresenceSync{})
	assert.Contains(t, effects, UpdatePeerStatus{PeerID: "p2", Online: false})
	assert.Contains(t, effects, UpdateOnlineCount{Count: 0})

	effects = st.Apply(PresenceJoin{Key: "p2"})
	assert.Contains(t, effects, UpdatePeerStatus{PeerID: "p2", Online: true})
	assert.Contains(t, effects, UpdateHeader{Title: "MORPHEUS", Online: true})
	assert.Contains(t, effects, UpdateOnlineCount{Count: 1})

	effects = st.Apply(PresenceLeave{Key: "p2"})
	assert.Contains(t, effects, UpdatePeerStatus{PeerID: "p2", Online: false})
	assert.Contains(t, effects, UpdateHeader{Title: "MORPHEUS", Online: false})
	assert.Contains(t, effects, UpdateOnlineCount{Count: 0})

	effects = st.Apply(PresenceJoin{Key: "p1"})
	assert.Empty(t, effectsOf[UpdateHeader](effects))
}

func TestPresenceSyncReplacesSet(t *testing.T) {
	st := newTestState(t)
	st.Apply(PresenceJoin{Key: "p1"})
	st.Apply(PresenceSync{Keys: []string{"p2", "u1"}})

	assert.Equal(t, map[string]bool{"p2": true, "u1": true}, st.Online)
	views := st.PeerViews()
	require.Len(t, views, 2)
	assert.False(t, views[0].Online)
	assert.True(t, views[1].Online)
}

func TestSwitchTwiceSameResult(t *testing.T) {
	history := []models.Message{global("g1", "p1", "a"), global("g2", "p2", "b")}

	once := newTestState(t)
	fetch := effectsOf[FetchHistory](once.Apply(SwitchConversation{Target: Broadcast}))
	once.Apply(HistoryLoaded{Generation: fetch[0].Generation, Selector: Broadcast, Messages: history})

	twice := newTestState(t)
	first := effectsOf[FetchHistory](twice.Apply(SwitchConversation{Target: Broadcast}))
	second := effectsOf[FetchHistory](twice.Apply(SwitchConversation{Target: Broadcast}))
	twice.Apply(HistoryLoaded{Generation: first[0].Generation, Selector: Broadcast, Messages: history})
	twice.Apply(HistoryLoaded{Generation: second[0].Generation, Selector: Broadcast, Messages: history})

	assert.Equal(t, renderedIDs(once), renderedIDs(twice))
}

func TestStaleHistoryDiscarded(t *testing.T) {
	st := newTestState(t)
	stale := effectsOf[FetchHistory](st.Apply(SwitchConversation{Target: "p1"}))[0]
	current := effectsOf[FetchHistory](st.Apply(SwitchConversation{Target: Broadcast}))[0]
	require.NotEqual(t, stale.Generation, current.Generation)

	effects := st.Apply(HistoryLoaded{
		Generation: stale.Generation,
		Selector:   "p1",
		Messages:   []models.Message{private("m1", "p1", "u1", "old")},
	})
	assert.Empty(t, effects)
	assert.Empty(t, st.Rendered)

	assert.Empty(t, st.Apply(HistoryFailed{Generation: stale.Generation, Selector: "p1"}))

	effects = st.Apply(HistoryLoaded{Generation: current.Generation, Selector: Broadcast})
	assert.Contains(t, effects, ShowNotice{Text: noticeEmptyBroadcast})
}

func TestDuplicateInsertRenderedOnce(t *testing.T) {
	st := newTestState(t)
	msg := global("g1", "p1", "déjà vu")

	assert.Len(t, effectsOf[RenderMessage](st.Apply(MessageFetched{Message: msg})), 1)
	assert.Empty(t, st.Apply(MessageFetched{Message: msg}))
	assert.Empty(t, st.Apply(MessageInserted{ID: "g1", SenderID: "p1", ChatType: models.ChatGlobal}))
	assert.Len(t, st.Rendered, 1)
}

func TestLiveMessagesMergedAfterHistory(t *testing.T) {
	st := newTestState(t)
	fetch := effectsOf[FetchHistory](st.Apply(SwitchConversation{Target: "p1"}))[0]

	live := private("m3", "p1", "u1", "live")
	st.Apply(MessageFetched{Message: live})

	history := []models.Message{private("m1", "u1", "p1", "one"), private("m2", "p1", "u1", "two"), live}
	effects := st.Apply(HistoryLoaded{Generation: fetch.Generation, Selector: "p1", Messages: history})

	assert.IsType(t, ClearMessages{}, effects[0])
	assert.Equal(t, []string{"m1", "m2", "m3"}, renderedIDs(st))
	assert.Len(t, effectsOf[RenderMessage](effects), 3)
}

func TestWelcomeAfterFirstHistory(t *testing.T) {
	st := NewState(self)
	effects := st.Apply(Started{})
	assert.IsType(t, FetchPeers{}, effects[0])
	assert.Equal(t, FetchSelf{ID: "u1"}, effects[1])
	fetch := effectsOf[FetchHistory](effects)
	require.Len(t, fetch, 1)
	assert.Equal(t, Broadcast, fetch[0].Selector)
	assert.Contains(t, effects, UpdateHeader{Title: BroadcastTitle, Online: true, Broadcast: true})

	effects = st.Apply(HistoryLoaded{Generation: fetch[0].Generation, Selector: Broadcast})
	assert.Equal(t, []ShowNotice{
		{Text: noticeEmptyBroadcast},
		{Text: "Welcome to the Neural Network, NEO"},
		{Text: noticeSecure},
	}, effectsOf[ShowNotice](effects))

	fetch = effectsOf[FetchHistory](st.Apply(SwitchConversation{Target: "p1"}))
	effects = st.Apply(HistoryLoaded{Generation: fetch[0].Generation, Selector: "p1"})
	assert.Equal(t, []ShowNotice{{Text: noticeEmptyPrivate}}, effectsOf[ShowNotice](effects))
}

func TestProfileUpdates(t *testing.T) {
	st := newTestState(t)

	effects := st.Apply(ProfileUpdated{Profile: models.Profile{ID: "p2", Username: "morpheus", Status: models.StatusOnline}, OldUsername: "morpheus"})
	peers := effectsOf[UpdatePeers](effects)
	require.Len(t, peers, 1)
	assert.Equal(t, models.StatusOnline, st.Peers[1].Status)

	effects = st.Apply(ProfileUpdated{Profile: models.Profile{ID: "p2", Username: "captain"}, OldUsername: "morpheus"})
	assert.Equal(t, []Effect{FetchPeers{}}, effects)

	effects = st.Apply(ProfileUpdated{Profile: models.Profile{ID: "p9", Username: "smith"}})
	assert.Equal(t, []Effect{FetchPeers{}}, effects)

	effects = st.Apply(ProfileUpdated{Profile: models.Profile{ID: "u1", Username: "theone"}, OldUsername: "neo"})
	assert.Equal(t, []Effect{UpdateSelf{Username: "theone"}}, effects)
	assert.Equal(t, "theone", st.Self.Username)
}

func TestAttachRequested(t *testing.T) {
	st := newTestState(t)
	st.Apply(SwitchConversation{Target: "p1"})

	file := LocalFile{Path: "/tmp/a.png", Name: "a.png", Size: 10, Kind: models.KindImage}
	effects := st.Apply(AttachRequested{File: file})
	assert.Equal(t, []UploadAttachment{{Selector: "p1", File: file}}, effectsOf[UploadAttachment](effects))
	assert.Len(t, effectsOf[ShowNotice](effects), 1)
}

func TestFailureNotices(t *testing.T) {
	st := newTestState(t)
	assert.Equal(t, []Effect{ShowNotice{Text: noticeSendError, Error: true}}, st.Apply(SendFailed{}))
	assert.Equal(t, []Effect{ShowNotice{Text: noticePeersError, Error: true}}, st.Apply(PeersFailed{}))
	assert.Equal(t, []Effect{ShowNotice{Text: noticeMessageError, Error: true}}, st.Apply(MessageFetchFailed{ID: "x"}))
	assert.Equal(t, []Effect{ClearInput{}}, st.Apply(SendSucceeded{ID: "x"}))
}

func TestSelfLoaded(t *testing.T) {
	st := newTestState(t)

	assert.Empty(t, st.Apply(SelfLoaded{Profile: self}))
	assert.Empty(t, st.Apply(SelfLoaded{Profile: models.Profile{ID: "p1", Username: "other"}}))

	effects := st.Apply(SelfLoaded{Profile: models.Profile{ID: "u1", Username: "theone"}})
	assert.Equal(t, []Effect{UpdateSelf{Username: "theone"}}, effects)
	assert.Equal(t, "theone", st.Self.Username)
}

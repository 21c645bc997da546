package chatsync

import "neuralchat/models"

// Effect is an outcome of Apply. Render effects go to the View; commands
// are carried out against the service by the Synchronizer.
type Effect interface{ effect() }

// Command is an effect that needs the service.
type Command interface {
	Effect
	command()
}

// Render effects

type ClearMessages struct{}

type RenderMessage struct{ Message models.Message }

type ShowNotice struct {
	Text  string
	Error bool
}

type UpdateHeader struct {
	Title     string
	Online    bool
	Broadcast bool
}

type UpdatePeers struct {
	Peers  []PeerView
	Active string
}

type UpdateBadge struct {
	PeerID string
	Count  int
}

type UpdatePeerStatus struct {
	PeerID string
	Online bool
}

type UpdateOnlineCount struct{ Count int }

type UpdateSelf struct{ Username string }

type ClearInput struct{}

// Notify signals a private message for a conversation that is not open.
type Notify struct {
	From string
	Text string
}

// Commands

type FetchHistory struct {
	Generation uint64
	Selector   string
}

type FetchMessage struct{ ID string }

type FetchPeers struct{}

// FetchSelf reloads the signed-in profile.
type FetchSelf struct{ ID string }

type InsertMessage struct {
	Selector string
	Content  string
}

type UploadAttachment struct {
	Selector string
	File     LocalFile
}

func (ClearMessages) effect()     {}
func (RenderMessage) effect()     {}
func (ShowNotice) effect()        {}
func (UpdateHeader) effect()      {}
func (UpdatePeers) effect()       {}
func (UpdateBadge) effect()       {}
func (UpdatePeerStatus) effect()  {}
func (UpdateOnlineCount) effect() {}
func (UpdateSelf) effect()        {}
func (ClearInput) effect()        {}
func (Notify) effect()            {}

func (FetchHistory) effect()     {}
func (FetchMessage) effect()     {}
func (FetchPeers) effect()       {}
func (FetchSelf) effect()        {}
func (InsertMessage) effect()    {}
func (UploadAttachment) effect() {}

func (FetchHistory) command()     {}
func (FetchMessage) command()     {}
func (FetchPeers) command()       {}
func (FetchSelf) command()        {}
func (InsertMessage) command()    {}
func (UploadAttachment) command() {}

package ui

import (
	"context"
	"errors"
	"time"

	"neuralchat/client/chatsync"
	"neuralchat/client/protocol"
	"neuralchat/models"
	wire "neuralchat/protocol"

	"github.com/rs/zerolog/log"
)

// startSession wires a signed-in client to a fresh synchronizer, then
// subscribes to the change feeds and joins presence.
func (a *App) startSession(client *protocol.Client, session protocol.Session, password string) error {
	storageURL := session.StorageURL
	if storageURL == "" {
		storageURL = a.cfg.Storage
	}
	uploads := &progressUploader{inner: protocol.NewStorage(storageURL, session.Token), app: a}

	view := &chatView{app: a}
	self := models.Profile{ID: session.UserID, Username: session.Username, Status: models.StatusOnline}
	chat := chatsync.New(self, client, uploads, view)
	view.chat = chat

	a.setupHandlers(client, chat)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := chat.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("synchronizer stopped")
		}
	}()

	a.mu.Lock()
	if a.stopSync != nil {
		a.stopSync()
	}
	a.client = client
	a.chat = chat
	a.stopSync = cancel
	a.session = session
	a.password = password
	a.mu.Unlock()

	reqCtx, done := context.WithTimeout(context.Background(), a.cfg.RequestTimeout())
	defer done()

	for _, table := range []string{wire.TableMessages, wire.TableProfiles} {
		if err := client.Subscribe(reqCtx, table); err != nil {
			return err
		}
	}
	chat.Start()
	return client.TrackPresence(reqCtx)
}

func (a *App) setupHandlers(client *protocol.Client, chat *chatsync.Synchronizer) {
	for _, t := range []string{wire.TypeInsert, wire.TypeUpdate, wire.TypePSync, wire.TypePJoin, wire.TypePLeave} {
		client.OnPacket(t, chat.HandlePacket)
	}

	// Handle bye from server or a lost connection
	client.OnPacket(wire.TypeBye, func(pkt *wire.Packet) {
		reason := pkt.Field(0)
		details := pkt.Field(1)

		a.mu.Lock()
		if a.client != client {
			a.mu.Unlock()
			return
		}
		a.client = nil
		a.chat = nil
		if a.stopSync != nil {
			a.stopSync()
			a.stopSync = nil
		}
		a.mu.Unlock()

		log.Warn().Str("reason", reason).Msg("disconnected")
		a.app.QueueUpdateDraw(func() {
			a.resetPresence()
			a.updateConnectionStatus()
			a.updateStatusBarText()
			a.showDisconnectNotification(reason, details)
		})
	})
}

// endSession drops the connection and stops the synchronizer.
func (a *App) endSession() {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.chat = nil
	if a.stopSync != nil {
		a.stopSync()
		a.stopSync = nil
	}
	a.mu.Unlock()

	if client != nil {
		signOff(client, min(a.cfg.RequestTimeout(), 2*time.Second))
	}
}

// sessionCloser is the part of the client needed to leave.
type sessionCloser interface {
	UpdateStatus(ctx context.Context, status string) error
	Disconnect() error
}

// signOff marks the user offline, then closes the connection.
func signOff(c sessionCloser, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.UpdateStatus(ctx, models.StatusOffline); err != nil && !errors.Is(err, protocol.ErrNotConnected) {
		log.Warn().Err(err).Msg("set status offline")
	}
	if err := c.Disconnect(); err != nil {
		log.Debug().Err(err).Msg("disconnect")
	}
}

// chatView hands render effects to the tview goroutine.
type chatView struct {
	app  *App
	chat *chatsync.Synchronizer
}

func (v *chatView) Render(effects []chatsync.Effect) {
	v.app.app.QueueUpdateDraw(func() {
		if v.app.currentChat() != v.chat {
			return
		}
		v.app.applyEffects(effects)
	})
}

func (a *App) applyEffects(effects []chatsync.Effect) {
	redraw, peers := false, false
	for _, e := range effects {
		switch e := e.(type) {
		case chatsync.ClearMessages:
			a.lines = nil
			redraw = true
		case chatsync.RenderMessage:
			m := e.Message
			a.lines = append(a.lines, line{msg: &m})
			redraw = true
		case chatsync.ShowNotice:
			a.lines = append(a.lines, line{notice: e.Text, err: e.Error})
			redraw = true
		case chatsync.UpdateHeader:
			a.setHeader(e)
		case chatsync.UpdatePeers:
			a.peers = e.Peers
			a.active = e.Active
			peers = true
		case chatsync.UpdateBadge:
			if i := a.peerIndex(e.PeerID); i >= 0 {
				a.peers[i].Unread = e.Count
				peers = true
			}
		case chatsync.UpdatePeerStatus:
			if i := a.peerIndex(e.PeerID); i >= 0 {
				a.peers[i].Online = e.Online
				peers = true
			}
		case chatsync.UpdateOnlineCount:
			a.onlineCount = e.Count
			peers = true
		case chatsync.UpdateSelf:
			a.self.Username = e.Username
			a.updateSelfTitle()
		case chatsync.ClearInput:
			if a.messageInput != nil {
				a.messageInput.SetText("")
			}
		case chatsync.Notify:
			a.notify(e)
		}
	}
	if peers {
		a.updatePeersList()
	}
	if redraw {
		a.redrawMessages()
	}
}

func (a *App) peerIndex(id string) int {
	for i, p := range a.peers {
		if p.ID == id {
			return i
		}
	}
	return -1
}

package chatsync

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"

	"github.com/rs/zerolog/log"
)

var ErrEmptyMessage = errors.New("empty message")

// Service is the part of the chat service the synchronizer queries.
type Service interface {
	FetchProfile(ctx context.Context, id string) (models.Profile, error)
	FetchPeers(ctx context.Context) ([]models.Profile, error)
	FetchMessages(ctx context.Context, selector string) ([]models.Message, error)
	FetchMessage(ctx context.Context, id string) (models.Message, error)
	InsertMessage(ctx context.Context, selector, content string, attachments int) (string, error)
	InsertAttachment(ctx context.Context, a models.Attachment) (string, error)
}

// Uploader stores attachment blobs and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) (string, error)
}

// View receives render effects in the order they were produced.
type View interface {
	Render(effects []Effect)
}

// Synchronizer owns a State and runs every event against it on one
// goroutine. Service calls run on their own goroutines and report back
// as events.
type Synchronizer struct {
	state  *State
	svc    Service
	store  Uploader
	view   View
	now    func() time.Time
	events chan Event
	query  chan func(*State)
	done   chan struct{}
	ctx    context.Context
	wg     sync.WaitGroup
}

func New(self models.Profile, svc Service, store Uploader, view View) *Synchronizer {
	return &Synchronizer{
		state:  NewState(self),
		svc:    svc,
		store:  store,
		view:   view,
		now:    time.Now,
		events: make(chan Event, 1024),
		query:  make(chan func(*State)),
		done:   make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.ctx = ctx
	defer func() {
		close(s.done)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ev)
		case fn := <-s.query:
			fn(s.state)
		}
	}
}

// Post queues an event for the owner loop.
func (s *Synchronizer) Post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// HandlePacket turns a realtime push into an event.
func (s *Synchronizer) HandlePacket(pkt *wire.Packet) {
	if ev, ok := EventFromPacket(pkt); ok {
		s.Post(ev)
	}
}

// Query runs fn on the owner loop and waits for it. It reports false if
// the loop has stopped. Never call it from inside View.Render.
func (s *Synchronizer) Query(fn func(*State)) bool {
	finished := make(chan struct{})
	select {
	case s.query <- func(st *State) { fn(st); close(finished) }:
	case <-s.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-s.done:
		return false
	}
}

// Start loads the peer list and opens the broadcast channel.
func (s *Synchronizer) Start() {
	s.Post(Started{})
}

func (s *Synchronizer) SwitchConversation(target string) {
	s.Post(SwitchConversation{Target: target})
}

// SubmitMessage sends text to the active conversation. Blank text is
// rejected without touching the service.
func (s *Synchronizer) SubmitMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.Post(SubmitRequested{Text: text})
	return nil
}

// SendAttachment uploads a file to the active conversation. Size limits are
// checked before anything is sent.
func (s *Synchronizer) SendAttachment(path string) error {
	file, err := InspectFile(path)
	if err != nil {
		return err
	}
	s.Post(AttachRequested{File: file})
	return nil
}

func (s *Synchronizer) ReloadPeers() {
	s.Post(ReloadPeers{})
}

// Search looks for query in the messages currently on screen.
func (s *Synchronizer) Search(query string) []SearchResult {
	var out []SearchResult
	s.Query(func(st *State) { out = Search(st.Rendered, query) })
	return out
}

func (s *Synchronizer) handle(ev Event) {
	var render []Effect
	for _, e := range s.state.Apply(ev) {
		if cmd, ok := e.(Command); ok {
			s.exec(cmd)
			continue
		}
		render = append(render, e)
	}
	if len(render) > 0 && s.view != nil {
		s.view.Render(render)
	}
}

// exec starts a command; its outcome comes back through Post.
func (s *Synchronizer) exec(cmd Command) {
	switch c := cmd.(type) {
	case FetchHistory:
		s.spawn(func(ctx context.Context) {
			msgs, err := s.svc.FetchMessages(ctx, c.Selector)
			if err != nil {
				log.Error().Err(err).Str("selector", c.Selector).Msg("fetch history")
				s.Post(HistoryFailed{Generation: c.Generation, Selector: c.Selector, Err: err})
				return
			}
			s.Post(HistoryLoaded{Generation: c.Generation, Selector: c.Selector, Messages: msgs})
		})

	case FetchMessage:
		s.spawn(func(ctx context.Context) {
			m, err := s.svc.FetchMessage(ctx, c.ID)
			if err != nil {
				log.Error().Err(err).Str("id", c.ID).Msg("fetch message")
				s.Post(MessageFetchFailed{ID: c.ID, Err: err})
				return
			}
			s.Post(MessageFetched{Message: m})
		})

	case FetchPeers:
		s.spawn(func(ctx context.Context) {
			peers, err := s.svc.FetchPeers(ctx)
			if err != nil {
				log.Error().Err(err).Msg("fetch peers")
				s.Post(PeersFailed{Err: err})
				return
			}
			s.Post(PeersLoaded{Peers: peers})
		})

	case FetchSelf:
		s.spawn(func(ctx context.Context) {
			p, err := s.svc.FetchProfile(ctx, c.ID)
			if err != nil {
				log.Warn().Err(err).Msg("fetch own profile")
				return
			}
			s.Post(SelfLoaded{Profile: p})
		})

	case InsertMessage:
		s.spawn(func(ctx context.Context) {
			id, err := s.svc.InsertMessage(ctx, c.Selector, c.Content, 0)
			if err != nil {
				log.Error().Err(err).Str("selector", c.Selector).Msg("send message")
				s.Post(SendFailed{Err: err})
				return
			}
			s.Post(SendSucceeded{ID: id})
		})

	case UploadAttachment:
		owner := s.state.Self.ID
		s.spawn(func(ctx context.Context) {
			if text := s.upload(ctx, owner, c); text != "" {
				s.Post(Notice{Text: text, Error: true})
			}
		})
	}
}

func (s *Synchronizer) spawn(fn func(ctx context.Context)) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// upload stores the blob, then the message, then the attachment record.
// It returns the notice to show on failure.
func (s *Synchronizer) upload(ctx context.Context, owner string, c UploadAttachment) string {
	f, err := os.Open(c.File.Path)
	if err != nil {
		log.Error().Err(err).Str("path", c.File.Path).Msg("open attachment")
		return "Error uploading file"
	}
	defer f.Close()

	bucket := BucketFor(c.File.Kind)
	key := StorageKey(owner, s.now(), c.File.Name)

	url, err := s.store.Upload(ctx, bucket, key, f, c.File.MimeType)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload attachment")
		return "Failed to upload file"
	}

	content := ""
	if c.File.Kind != models.KindImage {
		content = "📎 " + c.File.Name
	}

	id, err := s.svc.InsertMessage(ctx, c.Selector, content, 1)
	if err != nil {
		log.Error().Err(err).Msg("send attachment message")
		return "Error sending message with attachment"
	}

	_, err = s.svc.InsertAttachment(ctx, models.Attachment{
		MessageID:   id,
		FileName:    c.File.Name,
		FileType:    c.File.Kind,
		FileSize:    c.File.Size,
		FileURL:     url,
		StoragePath: key,
		MimeType:    c.File.MimeType,
	})
	if err != nil {
		log.Error().Err(err).Str("message", id).Msg("save attachment")
		return "Error saving attachment"
	}
	return ""
}

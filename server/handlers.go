package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"neuralchat/db"
	"neuralchat/models"
	"neuralchat/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	minUsername   = 3
	maxUsername   = 32
	minPassword   = 6
	maxContent    = 4000
	maxAttachment = 20 << 20
)

func (s *Server) handlePing(session *Session) {
	s.send(session, protocol.TypePong)
}

func (s *Server) handleRegister(session *Session, pkt *protocol.Packet) {
	username := strings.TrimSpace(pkt.Field(0))
	password := pkt.Field(1)

	if reason := validateUsername(username); reason != "" {
		s.sendError(session, "reg", reason)
		return
	}
	if len(password) < minPassword {
		s.sendError(session, "reg", "Password must be at least 6 characters")
		return
	}

	p, err := s.db.CreateProfile(username, password)
	if errors.Is(err, db.ErrUsernameTaken) {
		s.sendError(session, "reg", "User already exists")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("register")
		s.sendError(session, "reg", "Internal error")
		return
	}

	log.Info().Str("user", username).Str("id", p.ID).Msg("profile registered")
	s.sendOK(session, "reg", p.ID)
}

func (s *Server) handleAuth(session *Session, pkt *protocol.Packet) {
	username := strings.TrimSpace(pkt.Field(0))
	password := pkt.Field(1)

	if username == "" || password == "" {
		s.sendError(session, "auth", "Invalid credentials")
		return
	}

	// already signed in on this connection
	if session.UserID != "" {
		session.mu.Lock()
		fields := []string{session.UserID, session.Username, session.token, s.config.PublicURL}
		session.mu.Unlock()
		s.sendOK(session, "auth", fields...)
		return
	}

	p, ok, err := s.db.Authenticate(username, password)
	if err != nil {
		log.Error().Err(err).Msg("auth")
		s.sendError(session, "auth", "Internal error")
		return
	}
	if !ok {
		s.sendError(session, "auth", "Invalid credentials")
		return
	}

	session.mu.Lock()
	session.UserID = p.ID
	session.Username = p.Username
	session.token = uuid.NewString()
	session.mu.Unlock()

	s.addSession(session, session.token)
	s.sendOK(session, "auth", p.ID, p.Username, session.token, s.config.PublicURL)

	log.Info().Str("user", p.Username).Msg("signed in")
	s.setStatus(p.ID, models.StatusOnline)
}

func (s *Server) requireAuth(session *Session, op string) bool {
	if session.UserID == "" {
		s.sendError(session, op, "Not authenticated")
		return false
	}
	return true
}

func (s *Server) handleProfile(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "prof") {
		return
	}

	id := pkt.Field(0)
	if id == "" {
		id = session.UserID
	}

	p, err := s.db.GetProfile(id)
	if errors.Is(err, db.ErrNoRows) {
		s.sendError(session, "prof", "User not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("profile")
		s.sendError(session, "prof", "Internal error")
		return
	}

	s.send(session, protocol.TypeProfile, protocol.AppendProfile(nil, p)...)
}

func (s *Server) handleUsers(session *Session) {
	if !s.requireAuth(session, "users") {
		return
	}

	profiles, err := s.db.ListProfiles(session.UserID)
	if err != nil {
		log.Error().Err(err).Msg("list profiles")
		s.sendError(session, "users", "Internal error")
		return
	}

	fields := []string{strconv.Itoa(len(profiles))}
	for _, p := range profiles {
		fields = protocol.AppendProfile(fields, p)
	}
	s.send(session, protocol.TypeUsers, fields...)
}

func (s *Server) handleHistory(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "hist") {
		return
	}

	selector := pkt.Field(0)
	if selector == "" {
		s.sendError(session, "hist", "Selector required")
		return
	}

	limit := protocol.HistoryLimit
	if raw := pkt.Field(1); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	peer := selector
	if selector == protocol.Broadcast {
		peer = ""
	}

	messages, err := s.db.RecentMessages(session.UserID, peer, limit)
	if err != nil {
		log.Error().Err(err).Msg("history")
		s.sendError(session, "hist", "Internal error")
		return
	}

	fields := []string{selector, strconv.Itoa(len(messages))}
	for _, m := range messages {
		fields = protocol.AppendMessage(fields, m)
	}
	s.send(session, protocol.TypeHist, fields...)
}

func (s *Server) handleGet(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "get") {
		return
	}

	m, err := s.db.GetMessage(pkt.Field(0))
	if err == nil && m.ChatType == models.ChatPrivate && !m.Involves(session.UserID) {
		err = db.ErrNoRows
	}
	if errors.Is(err, db.ErrNoRows) {
		s.sendError(session, "get", "Message not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("get message")
		s.sendError(session, "get", "Internal error")
		return
	}

	s.send(session, protocol.TypeRecord, protocol.AppendMessage(nil, m)...)
}

// handleSend inserts a message. An optional third field announces how many
// attachment records follow; the insert notification is held until they arrive.
func (s *Server) handleSend(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "send") {
		return
	}

	selector := pkt.Field(0)
	content := pkt.Field(1)
	expect, _ := strconv.Atoi(pkt.Field(2))

	if selector == "" {
		s.sendError(session, "send", "Recipient required")
		return
	}
	if strings.TrimSpace(content) == "" && expect <= 0 {
		s.sendError(session, "send", "Message text required")
		return
	}
	if utf8.RuneCountInString(content) > maxContent {
		s.sendError(session, "send", "Message too long")
		return
	}
	if !session.limiter.Allow() {
		s.sendError(session, "send", "Rate limit exceeded")
		return
	}

	chatType, receiver := models.ChatGlobal, ""
	if selector != protocol.Broadcast {
		if selector == session.UserID {
			s.sendError(session, "send", "Cannot message yourself")
			return
		}
		if _, err := s.db.GetProfile(selector); err != nil {
			if errors.Is(err, db.ErrNoRows) {
				s.sendError(session, "send", "Recipient not found")
			} else {
				log.Error().Err(err).Msg("send: recipient lookup")
				s.sendError(session, "send", "Internal error")
			}
			return
		}
		chatType, receiver = models.ChatPrivate, selector
	}

	m, err := s.db.InsertMessage(session.UserID, chatType, receiver, content, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("send")
		s.sendError(session, "send", "Internal error")
		return
	}

	s.sendOK(session, "send", m.ID)

	if expect > 0 {
		session.mu.Lock()
		session.pending[m.ID] = &pendingInsert{msg: m, remaining: expect}
		session.mu.Unlock()
		return
	}
	s.publishInsert(m)
}

func (s *Server) handleAttach(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "att") {
		return
	}

	r := protocol.NewReader(pkt.Fields)
	a := models.Attachment{
		MessageID:   r.String(),
		FileName:    r.String(),
		FileType:    r.String(),
		FileSize:    r.Int(),
		FileURL:     r.String(),
		StoragePath: r.String(),
		MimeType:    r.String(),
	}
	if r.Err() != nil {
		s.sendError(session, "att", "Invalid attachment")
		return
	}
	if a.FileType != models.KindImage && a.FileType != models.KindFile {
		s.sendError(session, "att", "Invalid attachment kind")
		return
	}
	if a.FileName == "" || a.FileSize < 0 || a.FileSize > maxAttachment {
		s.sendError(session, "att", "Invalid attachment")
		return
	}
	if !strings.HasPrefix(a.StoragePath, session.UserID+"/") {
		s.sendError(session, "att", "Storage path outside user folder")
		return
	}
	if !session.limiter.Allow() {
		s.sendError(session, "att", "Rate limit exceeded")
		return
	}

	m, err := s.db.GetMessage(a.MessageID)
	if err == nil && m.SenderID != session.UserID {
		err = db.ErrNoRows
	}
	if errors.Is(err, db.ErrNoRows) {
		s.sendError(session, "att", "Message not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("attach: message lookup")
		s.sendError(session, "att", "Internal error")
		return
	}

	stored, err := s.db.InsertAttachment(a)
	if err != nil {
		log.Error().Err(err).Msg("attach")
		s.sendError(session, "att", "Internal error")
		return
	}
	s.sendOK(session, "att", stored.ID)

	session.mu.Lock()
	held, ok := session.pending[a.MessageID]
	if ok {
		held.remaining--
		if held.remaining <= 0 {
			delete(session.pending, a.MessageID)
		} else {
			ok = false
		}
	}
	session.mu.Unlock()

	if ok {
		s.publishInsert(held.msg)
	}
}

func (s *Server) handleStatus(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "stat") {
		return
	}

	status := pkt.Field(0)
	if status != models.StatusOnline && status != models.StatusOffline {
		s.sendError(session, "stat", "Invalid status")
		return
	}

	if !s.setStatus(session.UserID, status) {
		s.sendError(session, "stat", "Internal error")
		return
	}
	s.sendOK(session, "stat")
}

func (s *Server) handleRename(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "name") {
		return
	}

	username := strings.TrimSpace(pkt.Field(0))
	if reason := validateUsername(username); reason != "" {
		s.sendError(session, "name", reason)
		return
	}

	old, p, err := s.db.Rename(session.UserID, username)
	if errors.Is(err, db.ErrUsernameTaken) {
		s.sendError(session, "name", "Username already taken")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("rename")
		s.sendError(session, "name", "Internal error")
		return
	}

	for _, sess := range s.snapshot(func(other *Session) bool { return other.UserID == p.ID }) {
		sess.mu.Lock()
		sess.Username = p.Username
		sess.mu.Unlock()
	}

	s.sendOK(session, "name")
	log.Info().Str("old", old).Str("new", p.Username).Msg("profile renamed")
	s.publishProfile(models.ProfileEvent{Profile: p, OldUsername: old})
}

func (s *Server) handleSubscribe(session *Session, pkt *protocol.Packet) {
	if !s.requireAuth(session, "sub") {
		return
	}

	table := pkt.Field(0)
	session.mu.Lock()
	switch table {
	case protocol.TableMessages:
		session.subMessages = true
	case protocol.TableProfiles:
		session.subProfiles = true
	default:
		session.mu.Unlock()
		s.sendError(session, "sub", "Unknown table")
		return
	}
	session.mu.Unlock()

	s.sendOK(session, "sub", table)
}

func (s *Server) handleTrack(session *Session) {
	if !s.requireAuth(session, "track") {
		return
	}

	session.mu.Lock()
	already := session.tracking
	session.tracking = true
	session.mu.Unlock()

	s.sendOK(session, "track")

	joined := false
	if !already {
		joined = s.presence.track(session.UserID, session.ID)
	}
	s.send(session, protocol.TypePSync, s.presenceFields()...)
	if joined {
		s.broadcastPresence(protocol.TypePJoin, session.UserID, session.ID)
	}
}

func (s *Server) handleBye(session *Session) {
	s.send(session, protocol.TypeBye)
	s.endSession(session)
}

func (s *Server) handleHelp(session *Session) {
	help := []string{
		"reg|username|password - Register",
		"auth|username|password - Sign in",
		"prof|id - Profile",
		"users - All profiles",
		"hist|selector[|limit] - Last messages (selector: global or user id)",
		"get|id - Message record",
		"send|selector|content[|attachments] - Send message",
		"att|message|name|kind|size|url|path|mime - Attachment record",
		"stat|online|offline - Set status",
		"name|username - Rename",
		"sub|messages|profiles - Subscribe to changes",
		"track - Join presence",
		"ping - Ping",
		"bye - Disconnect",
	}
	s.sendOK(session, "help", help...)
}

func validateUsername(username string) string {
	n := utf8.RuneCountInString(username)
	switch {
	case n < minUsername:
		return "Username must be at least 3 characters"
	case n > maxUsername:
		return "Username too long"
	case strings.ContainsAny(username, " \t\r\n"):
		return "Username must not contain spaces"
	}
	return ""
}

// setStatus stores the status and fans out the profile update.
func (s *Server) setStatus(userID, status string) bool {
	p, err := s.db.UpdateStatus(userID, status, time.Now())
	if err != nil {
		log.Error().Err(err).Str("id", userID).Msg("update status")
		return false
	}
	s.publishProfile(models.ProfileEvent{Profile: p, OldUsername: p.Username})
	return true
}

func (s *Server) publishInsert(m models.Message) {
	ev := models.InsertEvent{ID: m.ID, SenderID: m.SenderID, ChatType: m.ChatType, ReceiverID: m.ReceiverID}
	for _, sess := range s.snapshot(func(o *Session) bool { return o.subMessages }) {
		s.send(sess, protocol.TypeInsert, ev.ID, ev.SenderID, ev.ChatType, ev.ReceiverID)
	}
}

func (s *Server) publishProfile(ev models.ProfileEvent) {
	fields := []string{ev.ID, ev.Username, ev.OldUsername, ev.Status, protocol.FormatTime(ev.LastSeen)}
	for _, sess := range s.snapshot(func(o *Session) bool { return o.subProfiles }) {
		s.send(sess, protocol.TypeUpdate, fields...)
	}
}

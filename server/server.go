package server

import (
	"errors"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"neuralchat/db"
	"neuralchat/models"
	"neuralchat/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Server struct {
	db       *db.DB
	config   *ServerConfig
	sessions map[string]*Session // by session id, authenticated only
	tokens   map[string]string   // storage token -> user id
	mu       sync.RWMutex
	presence *presence
	storage  *Storage
	done     chan struct{}
	stopOnce sync.Once
}

type ServerConfig struct {
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PresenceInterval time.Duration
	SendRate         float64
	SendBurst        int
	StorageDir       string
	PublicURL        string
}

type Session struct {
	ID       string
	UserID   string
	Username string
	Conn     net.Conn
	LastPing time.Time

	token       string
	subMessages bool
	subProfiles bool
	tracking    bool
	limiter     *rate.Limiter
	pending     map[string]*pendingInsert // message id -> held insert event
	mu          sync.Mutex
	writeMu     sync.Mutex
}

// name is the session's username. Renames on another connection of the
// same user rewrite it, so it is read under mu.
func (sess *Session) name() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Username
}

// pendingInsert holds back an insert notification until the message's
// attachments are recorded.
type pendingInsert struct {
	msg       models.Message
	remaining int
}

func New(database *db.DB, config *ServerConfig) *Server {
	if config.PresenceInterval == 0 {
		config.PresenceInterval = 30 * time.Second
	}
	if config.SendRate == 0 {
		config.SendRate = 5
	}
	if config.SendBurst == 0 {
		config.SendBurst = 10
	}
	if config.StorageDir == "" {
		config.StorageDir = "storage"
	}

	s := &Server{
		db:       database,
		config:   config,
		sessions: make(map[string]*Session),
		tokens:   make(map[string]string),
		presence: newPresence(),
		done:     make(chan struct{}),
	}
	s.storage = NewStorage(config.StorageDir, config.PublicURL, s.userForToken)
	return s
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	defer listener.Close()

	log.Info().Int("port", s.config.Port).Msg("neuralchat realtime service started")

	go s.presenceLoop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			log.Error().Err(err).Msg("accept connection")
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	log.Info().Str("remote", remoteAddr).Msg("client connected")

	session := &Session{
		ID:       uuid.NewString(),
		Conn:     conn,
		LastPing: time.Now(),
		limiter:  rate.NewLimiter(rate.Limit(s.config.SendRate), s.config.SendBurst),
		pending:  make(map[string]*pendingInsert),
	}

	reader := protocol.NewLineReader(conn, protocol.MaxRequestLine)

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		line, err := reader.ReadLine()
		if errors.Is(err, protocol.ErrLineTooLong) {
			log.Warn().Str("remote", remoteAddr).Msg("oversized packet dropped")
			s.sendError(session, "", "Invalid packet format")
			continue
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Info().Str("user", session.name()).Str("remote", remoteAddr).Msg("session timed out")
				s.sendBye(session, "timeout", "")
			} else if err != io.EOF && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				log.Warn().Err(err).Str("remote", remoteAddr).Msg("read failed")
			}
			break
		}

		if line == "" {
			continue
		}

		// credentials never reach the log
		if !strings.HasPrefix(line, "auth|") && !strings.HasPrefix(line, "reg|") {
			log.Debug().Str("remote", remoteAddr).Str("packet", line).Msg("received")
		}

		pkt, err := protocol.ParsePacket(line)
		if err != nil {
			log.Warn().Err(err).Str("remote", remoteAddr).Str("line", line).Msg("parse error")
			s.sendError(session, "", "Invalid packet format")
			continue
		}

		s.handlePacket(session, pkt)

		if pkt.Type == protocol.TypeBye {
			return
		}
	}

	s.endSession(session)
	log.Info().Str("user", session.name()).Str("remote", remoteAddr).Msg("client disconnected")
}

func (s *Server) handlePacket(session *Session, pkt *protocol.Packet) {
	session.mu.Lock()
	session.LastPing = time.Now()
	session.mu.Unlock()

	switch pkt.Type {
	case protocol.TypePing:
		s.handlePing(session)
	case protocol.TypeAuth:
		s.handleAuth(session, pkt)
	case protocol.TypeReg:
		s.handleRegister(session, pkt)
	case protocol.TypeProfile:
		s.handleProfile(session, pkt)
	case protocol.TypeUsers:
		s.handleUsers(session)
	case protocol.TypeHist:
		s.handleHistory(session, pkt)
	case protocol.TypeGet:
		s.handleGet(session, pkt)
	case protocol.TypeSend:
		s.handleSend(session, pkt)
	case protocol.TypeAttach:
		s.handleAttach(session, pkt)
	case protocol.TypeStat:
		s.handleStatus(session, pkt)
	case protocol.TypeName:
		s.handleRename(session, pkt)
	case protocol.TypeSub:
		s.handleSubscribe(session, pkt)
	case protocol.TypeTrack:
		s.handleTrack(session)
	case protocol.TypeBye:
		s.handleBye(session)
	case protocol.TypeHelp:
		s.handleHelp(session)
	default:
		s.sendError(session, "", "Unknown packet type")
	}
}

// send writes one packet; writes from broadcasts and the read loop are serialised per session.
func (s *Server) send(session *Session, pktType string, fields ...string) {
	packet := protocol.FormatPacket(pktType, fields...)

	session.writeMu.Lock()
	defer session.writeMu.Unlock()
	if s.config.WriteTimeout > 0 {
		session.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := io.WriteString(session.Conn, packet); err != nil {
		log.Debug().Err(err).Str("user", session.name()).Msg("write failed")
	}
}

func (s *Server) sendOK(session *Session, operation string, fields ...string) {
	s.send(session, protocol.TypeOk, append([]string{operation}, fields...)...)
}

func (s *Server) sendError(session *Session, operation, description string) {
	if operation != "" {
		// Format: fail|operation|description
		s.send(session, protocol.TypeFail, operation, description)
	} else {
		s.send(session, protocol.TypeFail, description)
	}
}

func (s *Server) sendBye(session *Session, reason, details string) {
	switch {
	case details != "":
		s.send(session, protocol.TypeBye, reason, details)
	case reason != "":
		s.send(session, protocol.TypeBye, reason)
	default:
		s.send(session, protocol.TypeBye)
	}
}

func (s *Server) addSession(session *Session, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.tokens[token] = session.UserID
}

func (s *Server) removeSession(session *Session) (lastForUser bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return false
	}
	delete(s.sessions, session.ID)
	delete(s.tokens, session.token)
	for _, other := range s.sessions {
		if other.UserID == session.UserID {
			return false
		}
	}
	return true
}

// snapshot returns sessions matching keep.
func (s *Server) snapshot(keep func(*Session) bool) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sess.mu.Lock()
		ok := keep(sess)
		sess.mu.Unlock()
		if ok {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Server) userForToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.tokens[token]
	return uid, ok
}

// endSession flushes held inserts and drops the session from presence.
func (s *Server) endSession(session *Session) {
	if session.UserID == "" {
		return
	}

	session.mu.Lock()
	held := make([]models.Message, 0, len(session.pending))
	for id, p := range session.pending {
		held = append(held, p.msg)
		delete(session.pending, id)
	}
	tracking := session.tracking
	session.tracking = false
	session.mu.Unlock()

	for _, m := range held {
		s.publishInsert(m)
	}

	if tracking && s.presence.untrack(session.UserID, session.ID) {
		s.broadcastPresence(protocol.TypePLeave, session.UserID, session.ID)
	}

	if s.removeSession(session) {
		s.setStatus(session.UserID, models.StatusOffline)
	}
}

// GetStats returns server statistics as a formatted string
func (s *Server) GetStats() string {
	sessions := s.snapshot(func(*Session) bool { return true })

	seen := make(map[string]bool)
	var users []string
	for _, sess := range sessions {
		name := sess.name()
		if !seen[name] {
			seen[name] = true
			users = append(users, name)
		}
	}
	sort.Strings(users)

	return "connections=" + strconv.Itoa(len(sessions)) +
		",online=" + strconv.Itoa(len(s.presence.keys())) +
		",users=" + strings.Join(users, ";")
}

// Shutdown sends bye to every client with a reason:
// "maintenance", "restart" or "timeout". completionTime is optional.
func (s *Server) Shutdown(reason string, completionTime time.Time) {
	s.stopOnce.Do(func() { close(s.done) })

	sessions := s.snapshot(func(*Session) bool { return true })

	var details string
	if !completionTime.IsZero() {
		details = completionTime.UTC().Format(time.RFC3339)
	}

	for _, sess := range sessions {
		s.sendBye(sess, reason, details)
		sess.Conn.Close()
	}

	if err := s.db.ResetStatuses(); err != nil {
		log.Error().Err(err).Msg("reset statuses on shutdown")
	}
}

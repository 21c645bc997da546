package server

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"neuralchat/protocol"

	"github.com/rs/zerolog/log"
)

// presence tracks which keys have at least one live tracked connection.
type presence struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{} // key -> session ids
}

func newPresence() *presence {
	return &presence{conns: make(map[string]map[string]struct{})}
}

// track reports whether key just became present.
func (p *presence) track(key, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[key]
	if !ok {
		set = make(map[string]struct{})
		p.conns[key] = set
	}
	set[sessionID] = struct{}{}
	return !ok
}

// untrack reports whether key just went away.
func (p *presence) untrack(key, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[key]
	if !ok {
		return false
	}
	delete(set, sessionID)
	if len(set) > 0 {
		return false
	}
	delete(p.conns, key)
	return true
}

func (p *presence) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.conns))
	for k := range p.conns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) presenceFields() []string {
	keys := s.presence.keys()
	return append([]string{strconv.Itoa(len(keys))}, keys...)
}

// broadcastPresence notifies every tracking session except the one that caused the change.
func (s *Server) broadcastPresence(pktType, key, origin string) {
	for _, sess := range s.snapshot(func(o *Session) bool { return o.tracking && o.ID != origin }) {
		s.send(sess, pktType, key)
	}
}

func (s *Server) broadcastPresenceSync() {
	fields := s.presenceFields()
	for _, sess := range s.snapshot(func(o *Session) bool { return o.tracking }) {
		s.send(sess, protocol.TypePSync, fields...)
	}
}

func (s *Server) presenceLoop() {
	ticker := time.NewTicker(s.config.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.broadcastPresenceSync()
			log.Debug().Int("online", len(s.presence.keys())).Msg("presence sync")
		}
	}
}

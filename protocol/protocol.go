package protocol

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPacket = errors.New("invalid packet format")
)

// Packet types
const (
	TypePing    = "ping"
	TypePong    = "pong"
	TypeBye     = "bye"
	TypeAuth    = "auth"
	TypeReg     = "reg"
	TypeOk      = "ok"
	TypeFail    = "fail"
	TypeProfile = "prof"
	TypeUsers   = "users"
	TypeHist    = "hist"
	TypeGet     = "get"
	TypeRecord  = "rec"
	TypeSend    = "send"
	TypeAttach  = "att"
	TypeStat    = "stat"
	TypeName    = "name"
	TypeSub     = "sub"
	TypeTrack   = "track"
	TypeHelp    = "help"

	// pushed by the server
	TypeInsert = "ins"
	TypeUpdate = "upd"
	TypePSync  = "psync"
	TypePJoin  = "pjoin"
	TypePLeave = "pleave"
)

// Subscribable tables
const (
	TableMessages = "messages"
	TableProfiles = "profiles"
)

// Broadcast is the selector of the shared channel.
const Broadcast = "global"

// HistoryLimit is the default number of messages returned by hist.
const HistoryLimit = 50

// Object storage buckets
const (
	BucketImages = "chat-images"
	BucketFiles  = "chat-files"
)

type Packet struct {
	Type   string
	Fields []string // unescaped fields after the type
}

// Field returns the i-th field or an empty string.
func (p *Packet) Field(i int) string {
	if i < 0 || i >= len(p.Fields) {
		return ""
	}
	return p.Fields[i]
}

// IsPush reports whether the packet type is sent unsolicited by the server.
func IsPush(pktType string) bool {
	switch pktType {
	case TypeInsert, TypeUpdate, TypePSync, TypePJoin, TypePLeave, TypePong, TypeBye:
		return true
	}
	return false
}

func ParsePacket(line string) (*Packet, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil, ErrInvalidPacket
	}

	parts := splitUnescaped(line, '|')
	pkt := &Packet{Type: unescape(parts[0])}
	if pkt.Type == "" {
		return nil, ErrInvalidPacket
	}
	for _, p := range parts[1:] {
		pkt.Fields = append(pkt.Fields, unescape(p))
	}
	return pkt, nil
}

// FormatPacket builds TYPE|field|field...\n, escaping every field separately.
func FormatPacket(pktType string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, Escape(pktType))
	for _, f := range fields {
		parts = append(parts, Escape(f))
	}
	return strings.Join(parts, "|") + "\n"
}

// splitUnescaped splits s on delimiter, skipping escaped ones
func splitUnescaped(s string, delimiter rune) []string {
	var parts []string
	var current strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			current.WriteRune(r)
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			current.WriteRune(r)
			continue
		}

		if r == delimiter {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}

		current.WriteRune(r)
	}

	parts = append(parts, current.String())
	return parts
}

func unescape(s string) string {
	var result strings.Builder
	escape := false

	for i, r := range s {
		if escape {
			switch r {
			case '|':
				result.WriteRune('|')
			case ',':
				result.WriteRune(',')
			case '\\':
				result.WriteRune('\\')
			case 'n':
				result.WriteRune('\n')
			case 'r':
				result.WriteRune('\r')
			default:
				// unknown escape is kept verbatim
				result.WriteRune('\\')
				result.WriteRune(r)
			}
			escape = false
			continue
		}

		if r == '\\' && i < len(s)-1 {
			escape = true
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// Escape escapes the separator, newlines and backslashes
func Escape(s string) string {
	var result strings.Builder

	for _, r := range s {
		switch r {
		case '|':
			result.WriteString("\\|")
		case ',':
			result.WriteString("\\,")
		case '\\':
			result.WriteString("\\\\")
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Line length limits, escaped and including the terminator.
const (
	MaxRequestLine = 64 << 10 // client -> server
	MaxReplyLine   = 8 << 20  // server -> client; hist replies carry up to HistoryLimit messages
)

var ErrLineTooLong = errors.New("line too long")

// LineReader reads newline-terminated packets and never buffers more than
// its limit for a single line.
type LineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader, limit int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, limit)}
}

// ReadLine returns the next line without its "\r\n" terminator. A line over
// the limit is discarded up to its newline and reported as ErrLineTooLong;
// the reader stays usable after that.
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = lr.r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", ErrLineTooLong
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

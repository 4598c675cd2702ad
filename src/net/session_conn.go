package net

import (
	"bufio"
	"fmt"
	"net"

	"github.com/campnet/helisync/src/records"
	"github.com/ugorji/go/codec"
)

const (
	bufSize = 64 * 1024

	// DefaultMaxBatch is the largest count accepted for a batch.
	DefaultMaxBatch = 100000
)

// sessionConn frames the values of a session. Both the client and the server
// end of a connection use it.
type sessionConn struct {
	target   string
	conn     net.Conn
	w        *bufio.Writer
	dec      *codec.Decoder
	enc      *codec.Encoder
	maxBatch int
}

func newSessionConn(target string, conn net.Conn, maxBatch int) *sessionConn {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	mh := records.NewMsgpackHandle()
	w := bufio.NewWriterSize(conn, bufSize)

	return &sessionConn{
		target:   target,
		conn:     conn,
		w:        w,
		dec:      codec.NewDecoder(bufio.NewReaderSize(conn, bufSize), mh),
		enc:      codec.NewEncoder(w, mh),
		maxBatch: maxBatch,
	}
}

// Release closes the underlying connection
func (s *sessionConn) Release() error {
	return s.conn.Close()
}

func (s *sessionConn) flush() error {
	return s.w.Flush()
}

func (s *sessionConn) writeToken(token string) error {
	return s.enc.Encode(token)
}

func (s *sessionConn) readToken() (string, error) {
	var token string
	if err := s.dec.Decode(&token); err != nil {
		return "", err
	}
	return token, nil
}

// expect reads a token and fails if it is not the wanted one.
func (s *sessionConn) expect(want string) error {
	token, err := s.readToken()
	if err != nil {
		return err
	}
	if token != want {
		return fmt.Errorf("%w: %q, expected %q", ErrUnexpectedToken, token, want)
	}
	return nil
}

func (s *sessionConn) writeCount(n int) error {
	if n < 0 || n > s.maxBatch {
		return fmt.Errorf("%w: %d", ErrBadCount, n)
	}
	return s.enc.Encode(int32(n))
}

func (s *sessionConn) readCount() (int, error) {
	var n int32
	if err := s.dec.Decode(&n); err != nil {
		return 0, err
	}
	if n < 0 || int(n) > s.maxBatch {
		return 0, fmt.Errorf("%w: %d", ErrBadCount, n)
	}
	return int(n), nil
}

func (s *sessionConn) writeRequests(requests []*records.Request) error {
	if err := s.writeCount(len(requests)); err != nil {
		return err
	}
	for _, r := range requests {
		if err := s.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// readRequests buffers the whole batch. Nothing is returned if the stream is
// cut short.
func (s *sessionConn) readRequests() ([]*records.Request, error) {
	n, err := s.readCount()
	if err != nil {
		return nil, err
	}

	requests := make([]*records.Request, 0, n)
	for i := 0; i < n; i++ {
		r := new(records.Request)
		if err := s.dec.Decode(r); err != nil {
			return nil, fmt.Errorf("request %d of %d: %w", i+1, n, err)
		}
		requests = append(requests, r)
	}
	return requests, nil
}

func (s *sessionConn) writeTimetable(timetable []*records.TimetableEntry) error {
	if err := s.writeCount(len(timetable)); err != nil {
		return err
	}
	for _, e := range timetable {
		if err := s.enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *sessionConn) readTimetable() ([]*records.TimetableEntry, error) {
	n, err := s.readCount()
	if err != nil {
		return nil, err
	}

	timetable := make([]*records.TimetableEntry, 0, n)
	for i := 0; i < n; i++ {
		e := new(records.TimetableEntry)
		if err := s.dec.Decode(e); err != nil {
			return nil, fmt.Errorf("timetable entry %d of %d: %w", i+1, n, err)
		}
		timetable = append(timetable, e)
	}
	return timetable, nil
}

// writeSingleRequest frames the payload of takeMyRequest: a count of one then
// the request.
func (s *sessionConn) writeSingleRequest(r *records.Request) error {
	return s.writeRequests([]*records.Request{r})
}

func (s *sessionConn) readSingleRequest() (*records.Request, error) {
	n, err := s.readCount()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: %d, takeMyRequest carries one request", ErrBadCount, n)
	}

	r := new(records.Request)
	if err := s.dec.Decode(r); err != nil {
		return nil, err
	}
	return r, nil
}

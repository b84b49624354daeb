package events

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const chunkHeaderPrefix = "content-length:"

// streamState tracks where the framing loop is: scanning lines for the
// next chunk-length header, or reading a payload by character count.
type streamState int

const (
	awaitingHeader streamState = iota
	readingPayload
)

// ChunkStream is one event subscription in raw form: a single-pass
// sequence of chunk payload texts read from a long-lived attach
// connection. It owns the connection and releases it when the sequence
// ends, errors out or is closed early. It is not restartable; call
// EventStream again to resubscribe.
type ChunkStream struct {
	body      StreamBody
	lines     *lineReader
	state     streamState
	chunkSize int
	err       error
	closeOnce sync.Once
	closeErr  error
	log       *log.Entry
}

// EventStream attaches to the camera event feed for the given codes and
// returns the raw chunk sequence. retries bounds the connect attempts
// only; once streaming, errors terminate the sequence.
//
// Codes classify the notification type: VideoMotion, VideoLoss,
// VideoBlind, AlarmLocal, StorageNotExist, StorageFailure,
// StorageLowSpace, AlarmOutput.
func (c *Client) EventStream(eventCodes []string, retries int) (*ChunkStream, error) {
	path := fmt.Sprintf("eventManager.cgi?action=attach&codes=[%s]", strings.Join(eventCodes, ","))
	body, err := c.transport.OpenStream(path, retries)
	if err != nil {
		return nil, &CommError{Cause: err}
	}
	c.log.Info("Attached to camera event feed, codes: ", eventCodes)
	return &ChunkStream{
		body:  body,
		lines: newLineReader(body),
		log:   c.log,
	}, nil
}

// Next returns the next chunk payload text. It blocks until the camera
// pushes an event. io.EOF reports a clean end of the feed; any other
// error is terminal and the connection is already released when Next
// returns it.
func (s *ChunkStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		switch s.state {
		case awaitingHeader:
			line, err := s.lines.next()
			if err != nil {
				return "", s.fail(err)
			}
			if !strings.HasPrefix(strings.ToLower(line), chunkHeaderPrefix) {
				// Boundary markers and auxiliary part headers, nothing
				// to decode.
				continue
			}
			size, err := strconv.Atoi(strings.TrimSpace(line[len(chunkHeaderPrefix):]))
			if err != nil || size < 0 {
				return "", s.abort(&ProtocolError{Reason: fmt.Sprintf("malformed chunk length in %q", line)})
			}
			s.chunkSize = size
			s.state = readingPayload
		case readingPayload:
			payload, err := readRunes(s.body, s.chunkSize)
			s.state = awaitingHeader
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return "", s.fail(err)
			}
			return payload, nil
		}
	}
}

// fail latches a terminal error, wrapping transport failures into
// CommError. A clean end of stream stays io.EOF.
func (s *ChunkStream) fail(err error) error {
	if err == io.EOF {
		return s.abort(io.EOF)
	}
	s.log.Debugf("Error during event streaming: %v", err)
	return s.abort(&CommError{Cause: err})
}

func (s *ChunkStream) abort(err error) error {
	s.err = err
	s.Close()
	return s.err
}

// Close releases the underlying connection exactly once. Safe to call
// repeatedly, after a terminal error, and from another goroutine while
// Next is blocked.
func (s *ChunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// ActionStream is the decoded form of an event subscription, yielding
// one Event per chunk.
type ActionStream struct {
	chunks *ChunkStream
	log    *log.Entry
}

// EventActions attaches to the camera event feed and returns the decoded
// event sequence. See EventStream for codes and retry semantics.
func (c *Client) EventActions(eventCodes []string, retries int) (*ActionStream, error) {
	chunks, err := c.EventStream(eventCodes, retries)
	if err != nil {
		return nil, err
	}
	return &ActionStream{chunks: chunks, log: c.log}, nil
}

// Next returns the next decoded event. Errors follow ChunkStream.Next,
// with one addition: a payload that cannot be decoded ends the sequence
// with a ProtocolError.
func (s *ActionStream) Next() (*Event, error) {
	raw, err := s.chunks.Next()
	if err != nil {
		return nil, err
	}
	s.log.Debugf("event info: %q", raw)
	event, err := decodePayload(raw)
	if err != nil {
		return nil, s.chunks.abort(err)
	}
	s.log.Debugf("new event, code: %s, payload: %v", event.Code, event.Values)
	return event, nil
}

// Close releases the underlying connection.
func (s *ActionStream) Close() error {
	return s.chunks.Close()
}

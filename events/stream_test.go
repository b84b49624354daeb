package events

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeBody serves a canned character stream and counts Close calls.
type fakeBody struct {
	reader io.RuneReader
	closed int
}

func newFakeBody(text string) *fakeBody {
	return &fakeBody{reader: strings.NewReader(text)}
}

func (b *fakeBody) ReadRune() (rune, int, error) {
	return b.reader.ReadRune()
}

func (b *fakeBody) Close() error {
	b.closed++
	return nil
}

// lockedBody counts Close calls under a lock so closes racing from
// several goroutines can be asserted on.
type lockedBody struct {
	reader io.RuneReader
	mux    sync.Mutex
	closed int
}

func (b *lockedBody) ReadRune() (rune, int, error) {
	return b.reader.ReadRune()
}

func (b *lockedBody) Close() error {
	b.mux.Lock()
	b.closed++
	b.mux.Unlock()
	return nil
}

func (b *lockedBody) closeCalls() int {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.closed
}

// errAfterBody fails with err once remaining characters are consumed.
type errAfterBody struct {
	fakeBody
	remaining int
	err       error
}

func (b *errAfterBody) ReadRune() (rune, int, error) {
	if b.remaining == 0 {
		return 0, 0, b.err
	}
	b.remaining--
	return b.fakeBody.ReadRune()
}

type fakeTransport struct {
	body      StreamBody
	openErr   error
	path      string
	retries   int
	responses map[string]string
	commands  []string
}

func (t *fakeTransport) Command(path string) ([]byte, error) {
	t.commands = append(t.commands, path)
	if response, ok := t.responses[path]; ok {
		return []byte(response), nil
	}
	return nil, fmt.Errorf("unexpected command %s", path)
}

func (t *fakeTransport) OpenStream(path string, retries int) (StreamBody, error) {
	t.path = path
	t.retries = retries
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.body, nil
}

// chunkText frames one payload the way camera firmware does: boundary
// and header lines, then the payload itself announced by character
// count.
func chunkText(payload string) string {
	return "--myboundary\r\nContent-Type: text/plain\r\nContent-Length: " +
		strconv.Itoa(len([]rune(payload))) + "\r\n" + payload
}

func TestEventStreamYieldsOneRecordPerHeader(t *testing.T) {
	text := chunkText("Code=VideoMotion;action=Start;index=0") +
		chunkText("Code=VideoMotion;action=Stop;index=0") +
		chunkText("Code=AlarmLocal;action=Start;index=1") +
		"--myboundary\r\n"
	body := newFakeBody(text)
	transport := &fakeTransport{body: body}

	stream, err := New(transport).EventStream([]string{"VideoMotion", "AlarmLocal"}, 0)
	if err != nil {
		t.Errorf("Can't open stream. Unexpected error: %v", err)
		t.Fail()
	}
	defer stream.Close()

	var payloads []string
	for {
		payload, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Errorf("Unexpected error during streaming: %v", err)
			t.Fail()
		}
		payloads = append(payloads, payload)
	}
	if len(payloads) != 3 {
		t.Errorf("Expected 3 payloads, got: %d", len(payloads))
	}
	if payloads[0] != "Code=VideoMotion;action=Start;index=0" {
		t.Errorf("Wrong first payload: %q", payloads[0])
	}
	if body.closed != 1 {
		t.Errorf("Expected connection closed once at EOF, got: %d", body.closed)
	}
}

func TestEventStreamAttachPath(t *testing.T) {
	transport := &fakeTransport{body: newFakeBody("")}
	stream, err := New(transport).EventStream([]string{"VideoMotion", "AlarmLocal"}, 3)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	defer stream.Close()

	expected := "eventManager.cgi?action=attach&codes=[VideoMotion,AlarmLocal]"
	if transport.path != expected {
		t.Errorf("Expected path %q, got: %q", expected, transport.path)
	}
	if transport.retries != 3 {
		t.Errorf("Expected retries passed through as 3, got: %d", transport.retries)
	}
}

func TestEventStreamExactPayloadCount(t *testing.T) {
	text := "Content-Length: 5\r\n12345--noise after chunk\r\nnot a header\r\n"
	body := newFakeBody(text)
	transport := &fakeTransport{body: body}

	stream, _ := New(transport).EventStream([]string{"VideoMotion"}, 0)
	defer stream.Close()

	payload, err := stream.Next()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	if payload != "12345" {
		t.Errorf("Expected payload '12345', got: %q", payload)
	}
}

func TestEventStreamMalformedChunkLength(t *testing.T) {
	body := newFakeBody("Content-Length: banana\r\n")
	transport := &fakeTransport{body: body}

	stream, _ := New(transport).EventStream([]string{"VideoMotion"}, 0)
	_, err := stream.Next()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Errorf("Expected ProtocolError, got: %v", err)
		t.Fail()
	}
	if body.closed != 1 {
		t.Errorf("Expected connection closed once, got: %d", body.closed)
	}
	// The error is terminal.
	if _, again := stream.Next(); again != err {
		t.Errorf("Expected same terminal error, got: %v", again)
	}
}

func TestEventStreamTransportErrorWrappedOnce(t *testing.T) {
	cause := errors.New("connection reset by peer")
	body := &errAfterBody{err: cause, remaining: len("Content-Length: 10\r\n123")}
	body.reader = strings.NewReader("Content-Length: 10\r\n123")
	transport := &fakeTransport{body: body}

	stream, _ := New(transport).EventStream([]string{"VideoMotion"}, 0)
	_, err := stream.Next()
	var commErr *CommError
	if !errors.As(err, &commErr) {
		t.Errorf("Expected CommError, got: %v", err)
		t.Fail()
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected original cause preserved, got: %v", err)
	}
	if body.closed != 1 {
		t.Errorf("Expected connection closed once, got: %d", body.closed)
	}
	if _, again := stream.Next(); again != err {
		t.Errorf("Expected no further records after transport error, got: %v", again)
	}
}

func TestEventStreamTruncatedPayload(t *testing.T) {
	body := newFakeBody("Content-Length: 10\r\nshort")
	transport := &fakeTransport{body: body}

	stream, _ := New(transport).EventStream([]string{"VideoMotion"}, 0)
	_, err := stream.Next()
	var commErr *CommError
	if !errors.As(err, &commErr) {
		t.Errorf("Expected CommError on truncated payload, got: %v", err)
		t.Fail()
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected unexpected EOF cause, got: %v", err)
	}
}

func TestEventStreamAbandonReleasesConnection(t *testing.T) {
	text := chunkText("Code=VideoMotion;action=Start;index=0") +
		chunkText("Code=VideoMotion;action=Stop;index=0")
	body := newFakeBody(text)
	transport := &fakeTransport{body: body}

	stream, _ := New(transport).EventStream([]string{"VideoMotion"}, 0)
	if _, err := stream.Next(); err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	stream.Close()
	stream.Close()
	if body.closed != 1 {
		t.Errorf("Expected connection released exactly once, got: %d", body.closed)
	}
}

func TestEventStreamCloseRacesWithOwner(t *testing.T) {
	// A supervising goroutine may close the stream while the consumer is
	// closing it too, e.g. on shutdown while the pump winds down. The
	// connection must be released exactly once with no contention on the
	// close state.
	body := &lockedBody{reader: strings.NewReader(chunkText("Code=VideoMotion;action=Start;index=0"))}
	transport := &fakeTransport{body: body}

	stream, err := New(transport).EventStream([]string{"VideoMotion"}, 0)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.Close()
		}()
	}
	wg.Wait()
	if calls := body.closeCalls(); calls != 1 {
		t.Errorf("Expected connection released exactly once, got: %d", calls)
	}
}

func TestEventActionsDecodesChunks(t *testing.T) {
	// Realistic framing: blank line between part headers and body, with
	// the announced length covering the separator the way firmware
	// counts it.
	payload := "Code=VideoMotion;action=Start;index=0;data={ \"Object[0]\" : \"1\" }"
	text := "--myboundary\r\nContent-Type: text/plain\r\nContent-Length: " +
		strconv.Itoa(len([]rune(payload))+2) + "\r\n\r\n" + payload
	transport := &fakeTransport{body: newFakeBody(text)}

	actions, err := New(transport).EventActions([]string{"VideoMotion"}, 0)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	defer actions.Close()

	event, err := actions.Next()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	if event.Code != "VideoMotion" || event.Action() != "Start" || event.Index() != "0" {
		t.Errorf("Wrong event decoded: %+v", event)
	}
	if event.Data["Object[0]"] != "1" {
		t.Errorf("Wrong data decoded: %v", event.Data)
	}
}

func TestEventActionsMissingCodeHaltsStream(t *testing.T) {
	body := newFakeBody(chunkText("action=Start;index=0"))
	transport := &fakeTransport{body: body}

	actions, _ := New(transport).EventActions([]string{"VideoMotion"}, 0)
	_, err := actions.Next()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Errorf("Expected ProtocolError, got: %v", err)
		t.Fail()
	}
	if body.closed != 1 {
		t.Errorf("Expected connection closed once, got: %d", body.closed)
	}
}

func TestEventStreamOpenFailureIsCommError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	transport := &fakeTransport{openErr: cause}

	_, err := New(transport).EventStream([]string{"VideoMotion"}, 2)
	var commErr *CommError
	if !errors.As(err, &commErr) {
		t.Errorf("Expected CommError, got: %v", err)
		t.Fail()
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected original cause preserved, got: %v", err)
	}
}

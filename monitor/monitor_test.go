package monitor

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/edgekit/dahua-events/events"
)

type fakeBody struct {
	reader io.RuneReader
}

func (b *fakeBody) ReadRune() (rune, int, error) {
	return b.reader.ReadRune()
}

func (b *fakeBody) Close() error {
	return nil
}

// scriptedTransport plays one canned stream per OpenStream call, failing
// once the script runs out.
type scriptedTransport struct {
	streams []string
	fails   int // connect failures before the first stream
	calls   int
}

func (t *scriptedTransport) Command(path string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (t *scriptedTransport) OpenStream(path string, retries int) (events.StreamBody, error) {
	call := t.calls
	t.calls++
	if call < t.fails {
		return nil, errors.New("dial tcp: connection refused")
	}
	index := call - t.fails
	if index >= len(t.streams) {
		return nil, errors.New("no more streams scripted")
	}
	return &fakeBody{reader: strings.NewReader(t.streams[index])}, nil
}

func chunkText(payload string) string {
	return "--myboundary\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n" + payload
}

func receiveEvent(t *testing.T, sub chan CameraEvent) CameraEvent {
	t.Helper()
	select {
	case event := <-sub:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for event")
		return CameraEvent{}
	}
}

func TestMonitorPublishesDecodedEvents(t *testing.T) {
	transport := &scriptedTransport{streams: []string{
		chunkText("Code=VideoMotion;action=Start;index=0") +
			chunkText("Code=VideoMotion;action=Stop;index=0"),
	}}
	m := New(events.New(transport), Config{
		EventCodes:     []string{"VideoMotion"},
		ReconnectDelay: time.Hour,
	})
	sub := m.Sub("VideoMotion")
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}

	first := receiveEvent(t, sub)
	if first.Code != "VideoMotion" || first.Action != "Start" {
		t.Errorf("Wrong first event: %+v", first)
	}
	if first.SessionID == "" {
		t.Errorf("Expected a session id on published events")
	}
	second := receiveEvent(t, sub)
	if second.Action != "Stop" {
		t.Errorf("Wrong second event: %+v", second)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("Expected both events from the same session")
	}
}

func TestMonitorReconnectsAfterFailure(t *testing.T) {
	transport := &scriptedTransport{
		fails:   1,
		streams: []string{chunkText("Code=AlarmLocal;action=Start;index=1")},
	}
	m := New(events.New(transport), Config{
		EventCodes:     []string{"AlarmLocal"},
		ReconnectDelay: 10 * time.Millisecond,
	})
	sub := m.Sub("AlarmLocal")
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}

	event := receiveEvent(t, sub)
	if event.Code != "AlarmLocal" || event.Index != "1" {
		t.Errorf("Wrong event after reconnect: %+v", event)
	}
}

func TestMonitorUnsubAfterStopReturns(t *testing.T) {
	transport := &scriptedTransport{streams: []string{
		chunkText("Code=VideoMotion;action=Start;index=0"),
	}}
	m := New(events.New(transport), Config{
		EventCodes:     []string{"VideoMotion"},
		ReconnectDelay: time.Hour,
	})
	sub := m.Sub("VideoMotion")
	if err := m.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	receiveEvent(t, sub)
	m.Stop()

	// Wait for the bus to finish shutting down.
	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-sub:
		case <-deadline:
			t.Fatalf("Subscriber channel not closed after Stop")
		}
	}

	// A consumer unsubscribing late, e.g. a relay connection tearing
	// down, must return instead of waiting on the stopped bus.
	done := make(chan struct{})
	go func() {
		m.Unsub(sub, "VideoMotion")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("Unsub did not return after Stop")
	}

	// Late subscribers get a closed channel instead of a dead one.
	select {
	case _, open := <-m.Sub("VideoMotion"):
		if open {
			t.Errorf("Expected a closed channel from Sub after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Errorf("Sub after Stop returned a channel that never closes")
	}
}

func TestMonitorStopClosesSubscribers(t *testing.T) {
	transport := &scriptedTransport{streams: []string{
		chunkText("Code=VideoMotion;action=Start;index=0"),
	}}
	m := New(events.New(transport), Config{
		EventCodes:     []string{"VideoMotion"},
		ReconnectDelay: time.Hour,
	})
	sub := m.Sub("VideoMotion")
	if err := m.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
		t.Fail()
	}
	receiveEvent(t, sub)

	m.Stop()
	m.Stop()

	select {
	case _, open := <-sub:
		if open {
			t.Errorf("Expected subscriber channel closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Errorf("Subscriber channel not closed after Stop")
	}
}

// Package monitor keeps a camera event subscription alive and
// republishes decoded notifications on an in-process bus keyed by event
// code, so several consumers can react to one camera session.
package monitor

import (
	"sync"
	"time"

	"github.com/cskr/pubsub/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/edgekit/dahua-events/events"
)

// CameraEvent is what bus subscribers receive: one decoded camera
// notification plus correlation metadata.
type CameraEvent struct {
	SessionID string            `json:"sessionId"`
	Code      string            `json:"code"`
	Action    string            `json:"action"`
	Index     string            `json:"index"`
	Values    map[string]string `json:"values"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// ActionSource is the camera-side surface the monitor needs, satisfied
// by events.Client.
type ActionSource interface {
	EventActions(eventCodes []string, retries int) (*events.ActionStream, error)
}

type Config struct {
	EventCodes     []string
	ConnectRetries int
	// ReconnectDelay is the pause before resubscribing after the stream
	// terminates. Default 10s.
	ReconnectDelay time.Duration
	// BusCapacity is the per-subscriber channel buffer. Default 10.
	BusCapacity int
}

type Monitor struct {
	source   ActionSource
	config   Config
	bus      *pubsub.PubSub[string, CameraEvent]
	stop     chan struct{}
	stopOnce sync.Once
	mux      sync.Mutex
	stream   *events.ActionStream
	stopped  bool
	log      *log.Entry
}

func New(source ActionSource, config Config) *Monitor {
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 10 * time.Second
	}
	if config.BusCapacity == 0 {
		config.BusCapacity = 10
	}
	return &Monitor{
		source: source,
		config: config,
		bus:    pubsub.New[string, CameraEvent](config.BusCapacity),
		stop:   make(chan struct{}),
		log:    log.WithField("component", "event-monitor"),
	}
}

// Bus exposes the underlying pubsub bus.
func (m *Monitor) Bus() *pubsub.PubSub[string, CameraEvent] {
	return m.bus
}

// Sub subscribes to events with the given codes. The channel stays open
// until Unsub or Stop. After the bus has shut down, Sub returns an
// already-closed channel.
func (m *Monitor) Sub(eventCodes ...string) chan CameraEvent {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.stopped {
		ch := make(chan CameraEvent)
		close(ch)
		return ch
	}
	return m.bus.Sub(eventCodes...)
}

// Unsub removes a subscription. Once the bus has shut down the
// subscriber channels are already closed, so this is a no-op rather
// than a send to a stopped bus.
func (m *Monitor) Unsub(ch chan CameraEvent, eventCodes ...string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.stopped {
		return
	}
	m.bus.Unsub(ch, eventCodes...)
}

// Start launches the subscription loop. It returns immediately; the loop
// reconnects after terminal stream errors until Stop is called.
func (m *Monitor) Start() error {
	go m.run()
	return nil
}

func (m *Monitor) run() {
	// Shut the bus down only after the pump is done with it, closing
	// all subscriber channels. The stopped flag flips under the same
	// lock Sub/Unsub take, so no bus call can start after it is set.
	defer func() {
		m.mux.Lock()
		m.stopped = true
		m.mux.Unlock()
		m.bus.Shutdown()
	}()
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		if err := m.pump(); err != nil {
			m.log.Errorf("Event stream terminated: %v", err)
		}
		select {
		case <-m.stop:
			return
		case <-time.After(m.config.ReconnectDelay):
		}
	}
}

// pump runs one subscription session until the stream terminates.
func (m *Monitor) pump() error {
	stream, err := m.source.EventActions(m.config.EventCodes, m.config.ConnectRetries)
	if err != nil {
		return err
	}
	m.mux.Lock()
	m.stream = stream
	m.mux.Unlock()
	defer stream.Close()

	sessionID := uuid.NewString()
	m.log.Infof("Camera event session %s started, codes: %v", sessionID, m.config.EventCodes)
	for {
		event, err := stream.Next()
		if err != nil {
			return err
		}
		m.bus.TryPub(CameraEvent{
			SessionID: sessionID,
			Code:      event.Code,
			Action:    event.Action(),
			Index:     event.Index(),
			Values:    event.Values,
			Data:      event.Data,
			Timestamp: time.Now().UnixMilli(),
		}, event.Code)
	}
}

// Stop ends the subscription loop and releases the camera connection.
// The bus shuts down once the loop drains, closing all subscriber
// channels.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mux.Lock()
		if m.stream != nil {
			m.stream.Close()
		}
		m.mux.Unlock()
	})
}

package voice

import (
	"context"
	"errors"
	"sync"
)

const (
	EventSpeak      = "speak"
	EventPlayed     = "played"
	EventListening  = "listening"
	EventTranscript = "transcript"
	EventMessage    = "message"
	EventError      = "error"
)

var ErrChannelClosed = errors.New("voice channel is closed")

// Event is one JSON text frame of the live call socket.
type Event struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Conn is the write side of a websocket connection.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Channel drives the browser over a websocket: utterances are sent as speak events
// and count as played once the client answers with a played event.
type Channel struct {
	conn Conn

	writeMu sync.Mutex
	acks    chan struct{}
	closed  chan struct{}
	once    sync.Once
}

var (
	_ Player   = (*Channel)(nil)
	_ Listener = (*Channel)(nil)
)

func NewChannel(conn Conn) *Channel {
	return &Channel{
		conn:   conn,
		acks:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *Channel) Play(ctx context.Context, text string) error {
	// forget an ack left over from an utterance that timed out
	select {
	case <-c.acks:
	default:
	}

	if err := c.Send(Event{Type: EventSpeak, Text: text}); err != nil {
		return err
	}

	select {
	case <-c.acks:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Pause(_ context.Context) error {
	return c.setListening(false)
}

func (c *Channel) Resume(_ context.Context) error {
	return c.setListening(true)
}

// Acknowledge records that the client finished playing the current utterance.
func (c *Channel) Acknowledge() {
	select {
	case c.acks <- struct{}{}:
	default:
	}
}

// Send writes one event; writes are serialized.
func (c *Channel) Send(event Event) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(event)
}

// Close unblocks a pending Play. It does not close the connection.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

func (c *Channel) setListening(enabled bool) error {
	return c.Send(Event{Type: EventListening, Enabled: &enabled})
}

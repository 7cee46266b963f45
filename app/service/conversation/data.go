package conversation

import (
	"context"
	"sync"
	"time"

	"voicedesk/app/service/records"
	"voicedesk/app/service/session"
	"voicedesk/app/service/tasks"
)

// Result is the outcome of one successful turn.
type Result struct {
	Reply         string        `json:"assistantReply"`
	State         session.State `json:"state"`
	Announcements []string      `json:"announcements"`
}

// Call is one active session. Its state only changes through a committed turn
// or a task status transition.
type Call struct {
	ID      string
	Email   string
	User    *records.User
	Started time.Time

	// turn serializes turns of the same call
	turn sync.Mutex

	mu      sync.Mutex
	state   session.State
	chat    []session.ChatMessage
	out     tasks.Speaker
	live    bool
	drainer *tasks.Drainer

	ended bool
	done  chan struct{}
}

var (
	_ tasks.Ledger  = (*Call)(nil)
	_ tasks.Speaker = (*Call)(nil)
)

func (c *Call) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Clone()
}

func (c *Call) Chat() []session.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]session.ChatMessage{}, c.chat...)
}

func (c *Call) Snapshot() []session.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]session.Task{}, c.state.Tasks...)
}

func (c *Call) Transition(index int, status session.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.state.Tasks) {
		return
	}

	c.state.Tasks[index].Status = status
}

// Speak records text as an assistant line and plays it on the attached voice channel.
func (c *Call) Speak(ctx context.Context, text string) error {
	c.mu.Lock()
	c.chat = append(c.chat, session.ChatMessage{Sender: session.SenderAssistant, Text: text})
	out := c.out
	c.mu.Unlock()

	return out.Speak(ctx, text)
}

// Attach routes speech to a live voice channel. Task drains then run in the background.
func (c *Call) Attach(out tasks.Speaker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.out = out
	c.live = true
}

// Detach falls back to text only operation.
func (c *Call) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.out = silent{}
	c.live = false
}

// Wait blocks until background task drains have finished.
func (c *Call) Wait() {
	c.drainer.Wait()
}

// Done is closed once the call has been ended and saved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

func (c *Call) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ended
}

// end detaches the voice channel and marks the call finished. Later turns are refused.
func (c *Call) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return
	}

	c.ended = true
	c.out = silent{}
	c.live = false
	c.state = session.State{}
	c.chat = nil
	close(c.done)
}

func (c *Call) isLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.live
}

// commit merges one turn into the live state and records the user line.
func (c *Call) commit(message string, topics, documents []string, newTasks []session.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = session.Merge(c.state, topics, documents, newTasks)
	c.chat = append(c.chat, session.ChatMessage{Sender: session.SenderUser, Text: message})
}

type silent struct{}

func (silent) Speak(context.Context, string) error { return nil }

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"voicedesk/app/apperr"
	"voicedesk/app/client/llm"
	"voicedesk/app/service/conversation"
	"voicedesk/app/service/extract"
	"voicedesk/app/service/records"
	"voicedesk/app/service/session"
	"voicedesk/app/service/tasks"
	"voicedesk/app/service/voice"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type frame struct {
	messageType int
	data        []byte
}

// fakeSocket acknowledges every speak event the way the browser client does.
type fakeSocket struct {
	in chan frame

	mu     sync.Mutex
	closed bool
	events []voice.Event
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan frame, 32)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.in
	if !ok {
		return 0, nil, io.EOF
	}

	return fr.messageType, fr.data, nil
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	event := v.(voice.Event)

	f.mu.Lock()
	defer f.mu.Unlock()

	if event.Type == voice.EventSpeak && !f.closed {
		played, _ := json.Marshal(voice.Event{Type: voice.EventPlayed})
		f.in <- frame{websocket.TextMessage, played}
	}

	f.events = append(f.events, event)

	return nil
}

func (f *fakeSocket) push(messageType int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.in <- frame{messageType, data}
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.in)
	}

	return nil
}

func (f *fakeSocket) hangUp() {
	_ = f.Close()
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// spoken returns speak, transcript and error events in order.
func (f *fakeSocket) spoken() []voice.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []voice.Event
	for _, event := range f.events {
		if event.Type != voice.EventListening {
			result = append(result, event)
		}
	}

	return result
}

type fakeTranscriber struct {
	byAudio map[string]string
	err     error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	return f.byAudio[string(audio)], nil
}

type stubExtractor struct{}

func (stubExtractor) Analyze(context.Context, string, []session.ChatMessage) (extract.Analysis, error) {
	return extract.Analysis{Topics: []string{"Password Reset"}}, nil
}

func (stubExtractor) Tasks(_ context.Context, utterance string) ([]session.Task, error) {
	if utterance != "reset my password" {
		return nil, nil
	}

	return []session.Task{{Type: session.TaskResetPassword, Status: session.StatusPending}}, nil
}

type stubReply struct{}

func (stubReply) Complete(context.Context, llm.Request) (string, error) {
	return "I'll take care of that.", nil
}

func (stubReply) Temperature() float32 {
	return 0.7
}

type memRecords struct {
	mu    sync.Mutex
	users map[string]*records.User
}

func (m *memRecords) GetRecord(_ context.Context, email string) (*records.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.users[records.Key(email)], nil
}

func (m *memRecords) PutRecord(_ context.Context, email string, user *records.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[records.Key(email)] = user

	return nil
}

func startCall(t *testing.T) (*conversation.Service, *conversation.Call) {
	engine := tasks.NewService(tasks.NewRegistry(tasks.DefaultActions()...), 1)
	conv := conversation.NewService(stubExtractor{}, stubReply{}, &memRecords{users: map[string]*records.User{}}, engine, time.Hour, 0)

	call, _, _, err := conv.StartCall(context.Background(), "Jane", "Doe", "jane@example.com")
	require.NoError(t, err)

	return conv, call
}

func run(svc *Service, call *conversation.Call, sock *fakeSocket) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(context.Background(), call, sock)
	}()

	return done
}

func waitFor(t *testing.T, sock *fakeSocket, n int) {
	require.Eventually(t, func() bool {
		return len(sock.spoken()) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_VoiceTurnWithBackgroundTask(t *testing.T) {
	conv, call := startCall(t)
	svc := NewService(&fakeTranscriber{byAudio: map[string]string{"clip-1": "reset my password"}}, conv, time.Second)
	sock := newFakeSocket()

	done := run(svc, call, sock)

	sock.push(websocket.BinaryMessage, []byte("clip-1"))
	waitFor(t, sock, 4)

	sock.hangUp()
	require.NoError(t, <-done)

	assert.Equal(t, []voice.Event{
		{Type: voice.EventSpeak, Text: "Hi Jane! How can I help you today?"},
		{Type: voice.EventTranscript, Text: "reset my password"},
		{Type: voice.EventSpeak, Text: "I'll take care of that."},
		{Type: voice.EventSpeak, Text: "A password reset link has been sent to jane@example.com."},
	}, sock.spoken())

	state := call.State()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, session.StatusCompleted, state.Tasks[0].Status)

	chat := call.Chat()
	assert.Equal(t, "A password reset link has been sent to jane@example.com.", chat[len(chat)-1].Text)
}

func TestRun_TypedMessage(t *testing.T) {
	conv, call := startCall(t)
	svc := NewService(&fakeTranscriber{}, conv, time.Second)
	sock := newFakeSocket()

	done := run(svc, call, sock)

	message, _ := json.Marshal(voice.Event{Type: voice.EventMessage, Text: "hello"})
	sock.push(websocket.TextMessage, message)
	waitFor(t, sock, 2)

	sock.hangUp()
	require.NoError(t, <-done)

	assert.Equal(t, voice.Event{Type: voice.EventSpeak, Text: "I'll take care of that."}, sock.spoken()[1])
	assert.Equal(t, []string{"Password Reset"}, call.State().Topics)
}

func TestRun_SilenceKeepsListening(t *testing.T) {
	conv, call := startCall(t)
	svc := NewService(&fakeTranscriber{byAudio: map[string]string{}}, conv, time.Second)
	sock := newFakeSocket()

	done := run(svc, call, sock)

	sock.push(websocket.BinaryMessage, []byte("noise"))
	waitFor(t, sock, 2)

	sock.hangUp()
	require.NoError(t, <-done)

	assert.Equal(t, []voice.Event{
		{Type: voice.EventSpeak, Text: "Hi Jane! How can I help you today?"},
		{Type: voice.EventTranscript},
	}, sock.spoken())
	assert.Len(t, call.Chat(), 1)
}

func TestRun_TranscriptionFailureApologizes(t *testing.T) {
	conv, call := startCall(t)
	svc := NewService(&fakeTranscriber{err: apperr.Upstream("transcribe", errors.New("unavailable"))}, conv, time.Second)
	sock := newFakeSocket()

	done := run(svc, call, sock)

	sock.push(websocket.BinaryMessage, []byte("clip"))
	waitFor(t, sock, 3)

	sock.hangUp()
	require.NoError(t, <-done)

	events := sock.spoken()
	assert.Equal(t, voice.Event{Type: voice.EventError, Code: apperr.CodeUpstream, Text: apperr.ApologyMessage}, events[1])
	assert.Equal(t, voice.Event{Type: voice.EventSpeak, Text: apperr.ApologyMessage}, events[2])
	assert.Len(t, call.Chat(), 1)
}

func TestRun_EndingTheCallClosesTheSocket(t *testing.T) {
	conv, call := startCall(t)
	svc := NewService(&fakeTranscriber{}, conv, time.Second)
	sock := newFakeSocket()

	done := run(svc, call, sock)
	waitFor(t, sock, 1)

	require.NoError(t, conv.EndCall(context.Background(), call.ID))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("live call kept running after the call ended")
	}

	assert.True(t, sock.isClosed())

	_, err := conv.Turn(context.Background(), call, "hello")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIsClosure(t *testing.T) {
	assert.True(t, isClosure(nil))
	assert.True(t, isClosure(io.EOF))
	assert.True(t, isClosure(context.Canceled))
	assert.False(t, isClosure(errors.New("boom")))
}

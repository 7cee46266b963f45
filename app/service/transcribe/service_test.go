package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"voicedesk/app/apperr"
	"voicedesk/app/client/speechkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type passthrough struct{}

func (passthrough) Decode(_ context.Context, audio []byte) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(audio)), nil
}

type fakeStream struct {
	phrases [][]string

	mu         sync.Mutex
	configured bool
	received   bytes.Buffer

	sendDone  chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	sendOnce  sync.Once
}

func newFakeStream(phrases ...[]string) *fakeStream {
	return &fakeStream{
		phrases:  phrases,
		sendDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (f *fakeStream) SendConfig() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.configured = true
	return nil
}

func (f *fakeStream) Send(content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.received.Write(content)
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.sendOnce.Do(func() { close(f.sendDone) })
	return nil
}

func (f *fakeStream) Recv() ([]string, error) {
	f.mu.Lock()
	if len(f.phrases) > 0 {
		next := f.phrases[0]
		f.phrases = f.phrases[1:]
		f.mu.Unlock()
		return next, nil
	}
	f.mu.Unlock()

	select {
	case <-f.sendDone:
		return nil, io.EOF
	case <-f.closed:
		return nil, context.Canceled
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type fakeRecognizer struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	streams []*fakeStream
}

func (f *fakeRecognizer) Start(context.Context) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}

	return f.streams[i], nil
}

func TestTranscribe(t *testing.T) {
	stream := newFakeStream([]string{"send invoice"}, nil, []string{"two seven five"})
	recognizer := &fakeRecognizer{streams: []*fakeStream{stream}}
	svc := NewService(recognizer, passthrough{}, time.Second)

	audio := bytes.Repeat([]byte{1, 2, 3}, bufferSize)

	text, err := svc.Transcribe(context.Background(), audio)
	require.NoError(t, err)

	assert.Equal(t, "send invoice two seven five", text)
	assert.True(t, stream.configured)
	assert.Equal(t, audio, stream.received.Bytes())
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	recognizer := &fakeRecognizer{}
	svc := NewService(recognizer, passthrough{}, time.Second)

	text, err := svc.Transcribe(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, text)
	assert.Zero(t, recognizer.calls)
}

func TestTranscribe_RetriesOnce(t *testing.T) {
	recognizer := &fakeRecognizer{
		errs:    []error{errors.New("unavailable"), nil},
		streams: []*fakeStream{nil, newFakeStream([]string{"hello"})},
	}
	svc := NewService(recognizer, passthrough{}, time.Second)
	svc.interval = time.Millisecond

	text, err := svc.Transcribe(context.Background(), []byte{0, 0})
	require.NoError(t, err)

	assert.Equal(t, "hello", text)
	assert.Equal(t, 2, recognizer.calls)
}

func TestTranscribe_GivesUp(t *testing.T) {
	recognizer := &fakeRecognizer{
		errs: []error{errors.New("unavailable"), errors.New("unavailable"), errors.New("unavailable")},
	}
	svc := NewService(recognizer, passthrough{}, time.Second)
	svc.interval = time.Millisecond

	_, err := svc.Transcribe(context.Background(), []byte{0, 0})
	require.Error(t, err)

	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Equal(t, maxTries, recognizer.calls)
}

func TestTranscribe_NotConfiguredIsNotRetried(t *testing.T) {
	recognizer := &fakeRecognizer{
		errs: []error{apperr.Upstream("speechkit", speechkit.ErrNotConfigured)},
	}
	svc := NewService(recognizer, passthrough{}, time.Second)

	_, err := svc.Transcribe(context.Background(), []byte{0, 0})

	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.ErrorIs(t, err, speechkit.ErrNotConfigured)
	assert.Equal(t, 1, recognizer.calls)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("pipe broken")
}

func (brokenReader) Close() error {
	return nil
}

type brokenDecoder struct{}

func (brokenDecoder) Decode(context.Context, []byte) (io.ReadCloser, error) {
	return brokenReader{}, nil
}

func TestTranscribe_DecodeFailureUnblocksReceiver(t *testing.T) {
	recognizer := &fakeRecognizer{streams: []*fakeStream{newFakeStream(), newFakeStream()}}
	svc := NewService(recognizer, brokenDecoder{}, time.Second)
	svc.interval = time.Millisecond

	_, err := svc.Transcribe(context.Background(), []byte{0, 0})

	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Equal(t, 2, recognizer.calls)
}

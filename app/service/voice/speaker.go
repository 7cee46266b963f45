package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	bufferSize    = 64
	resumeTimeout = 5 * time.Second
)

var ErrClosed = errors.New("speaker is closed")

// Player plays one utterance to the caller and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, text string) error
}

// Listener is the caller side voice activity detection.
type Listener interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

type utterance struct {
	ctx  context.Context
	text string
	done chan error
}

// Speaker serializes utterances: one plays at a time, in the order Speak was called,
// and the listener is paused for the whole playback.
type Speaker struct {
	player   Player
	listener Listener
	timeout  time.Duration

	queue    chan utterance
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSpeaker(player Player, listener Listener, timeout time.Duration) *Speaker {
	s := &Speaker{
		player:   player,
		listener: listener,
		timeout:  timeout,
		queue:    make(chan utterance, bufferSize),
		stop:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Speak queues text and blocks until it has been played.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	u := utterance{
		ctx:  ctx,
		text: text,
		done: make(chan error, 1),
	}

	select {
	case s.queue <- u:
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-u.done:
		return err
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Speaker) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case u := <-s.queue:
			u.done <- s.play(u)
		}
	}
}

func (s *Speaker) play(u utterance) (err error) {
	if u.ctx.Err() != nil {
		return u.ctx.Err()
	}

	ctx := u.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
		defer cancel()

		if resumeErr := s.listener.Resume(resumeCtx); resumeErr != nil {
			slog.Warn("Failed to resume listener", "error", resumeErr)
			if err == nil {
				err = fmt.Errorf("failed to resume listener: %w", resumeErr)
			}
		}
	}()

	if err = s.listener.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause listener: %w", err)
	}

	if err = s.player.Play(ctx, u.text); err != nil {
		return fmt.Errorf("failed to play utterance: %w", err)
	}

	return nil
}

// Close stops the worker. Utterances still queued are dropped.
func (s *Speaker) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()

	return nil
}

// Silent plays nothing. It backs sessions without an audio channel.
type Silent struct{}

func (Silent) Play(context.Context, string) error { return nil }
func (Silent) Pause(context.Context) error        { return nil }
func (Silent) Resume(context.Context) error       { return nil }

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"voicedesk/app/apperr"
	"voicedesk/app/client/speechkit"
	"voicedesk/app/config"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	bufferSize = 4096
	maxTries   = 2
)

// Stream is one recognition session.
type Stream interface {
	SendConfig() error
	Send(content []byte) error
	CloseSend() error
	Recv() ([]string, error)
	Close() error
}

type Recognizer interface {
	Start(ctx context.Context) (Stream, error)
}

type Service struct {
	recognizer Recognizer
	decoder    Decoder
	timeout    time.Duration
	interval   time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	client := do.MustInvoke[*speechkit.YandexSpeechKit](di)

	return NewService(speechKitRecognizer{client}, NewFFmpeg(cfg.FFmpeg.Path), cfg.Yandex.SpeechKit.Timeout), nil
}

func NewService(recognizer Recognizer, decoder Decoder, timeout time.Duration) *Service {
	return &Service{
		recognizer: recognizer,
		decoder:    decoder,
		timeout:    timeout,
		interval:   500 * time.Millisecond,
	}
}

// Transcribe converts one recorded utterance to text. Empty audio gives an empty
// transcript. A failed attempt is retried once before the error is returned.
func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()

	text, err := backoff.Retry(ctx, func() (string, error) {
		text, err := s.transcribeOnce(ctx, audio)
		if errors.Is(err, speechkit.ErrNotConfigured) {
			return "", backoff.Permanent(err)
		}

		return text, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.interval)),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Transcription attempt failed, retrying",
				"error", err,
				"retry_in", next,
			)
		}),
	)
	if err != nil {
		return "", apperr.Upstream("transcribe", err)
	}

	slog.Debug("Audio transcribed",
		"bytes", len(audio),
		"chars", len(text),
		"elapsed", time.Since(started),
	)

	return text, nil
}

func (s *Service) transcribeOnce(ctx context.Context, audio []byte) (string, error) {
	pcm, err := s.decoder.Decode(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	defer pcm.Close()

	handle, err := s.recognizer.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transcription: %w", err)
	}
	defer handle.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.streamAudio(ctx, pcm, handle); err != nil {
			// unblocks Recv
			_ = handle.Close()
			return err
		}

		return nil
	})

	var phrases []string
	g.Go(func() error {
		var err error
		phrases, err = s.receivePhrases(ctx, handle)
		return err
	})

	if err = g.Wait(); err != nil {
		return "", err
	}

	if err = pcm.Close(); err != nil {
		return "", err
	}

	return strings.Join(phrases, " "), nil
}

func (s *Service) streamAudio(ctx context.Context, pcm io.Reader, handle Stream) error {
	if err := handle.SendConfig(); err != nil {
		return fmt.Errorf("failed to send audio config: %w", err)
	}

	buffer := make([]byte, bufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := pcm.Read(buffer)
		if n > 0 {
			if sendErr := handle.Send(buffer[:n]); sendErr != nil {
				return fmt.Errorf("failed to send audio: %w", sendErr)
			}
		}

		if errors.Is(err, io.EOF) {
			return handle.CloseSend()
		}
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}

func (s *Service) receivePhrases(ctx context.Context, handle Stream) ([]string, error) {
	var result []string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sentences, err := handle.Recv()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}

		result = append(result, sentences...)
	}
}

type speechKitRecognizer struct {
	client *speechkit.YandexSpeechKit
}

func (r speechKitRecognizer) Start(ctx context.Context) (Stream, error) {
	handle, err := r.client.Start(ctx)
	if err != nil {
		return nil, err
	}

	return handle, nil
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"voicedesk/app/apperr"
	"voicedesk/app/config"
	"voicedesk/app/service/conversation"
	"voicedesk/app/service/transcribe"
	"voicedesk/app/service/voice"

	"github.com/gofiber/websocket/v2"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const inboxSize = 8

// Socket is a live call websocket.
type Socket interface {
	voice.Conn
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Conversation interface {
	Turn(ctx context.Context, call *conversation.Call, message string) (*conversation.Result, error)
}

// input is one caller utterance: recorded audio or typed text.
type input struct {
	audio []byte
	text  string
}

type Service struct {
	transcriber     Transcriber
	conversation    Conversation
	announceTimeout time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*transcribe.Service](di),
		do.MustInvoke[*conversation.Service](di),
		cfg.Assistant.AnnounceTimeout,
	), nil
}

func NewService(transcriber Transcriber, conv Conversation, announceTimeout time.Duration) *Service {
	return &Service{
		transcriber:     transcriber,
		conversation:    conv,
		announceTimeout: announceTimeout,
	}
}

// Run serves one live call until the socket closes or ctx is cancelled.
//
// Binary frames carry one recorded utterance each, text frames carry events.
// Turns are processed one after another while the socket keeps being read,
// so playback acknowledgements arrive while a reply is being spoken.
func (s *Service) Run(ctx context.Context, call *conversation.Call, sock Socket) error {
	channel := voice.NewChannel(sock)
	speaker := voice.NewSpeaker(channel, channel, s.announceTimeout)

	call.Attach(speaker)
	defer func() {
		call.Detach()
		channel.Close()
		_ = speaker.Close()
		call.Wait()
	}()

	slog.Info("Live call connected", "session_id", call.ID)

	g, ctx := errgroup.WithContext(ctx)
	inbox := make(chan input, inboxSize)

	g.Go(func() error {
		defer close(inbox)
		// a blocked Play must not outlive the socket
		defer channel.Close()

		return s.read(ctx, call, channel, sock, inbox)
	})

	g.Go(func() error {
		if chat := call.Chat(); len(chat) == 1 {
			if err := speaker.Speak(ctx, chat[0].Text); err != nil {
				slog.Warn("Failed to play greeting", "session_id", call.ID, "error", err)
			}
		} else if err := channel.Resume(ctx); err != nil {
			return err
		}

		for in := range inbox {
			s.handle(ctx, call, channel, speaker, in)
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-call.Done():
			// unblocks ReadMessage
			_ = sock.Close()
			return nil
		case <-ctx.Done():
			return nil
		}
	})

	err := g.Wait()

	slog.Info("Live call disconnected", "session_id", call.ID, "ended", call.Ended())

	if isClosure(err) || call.Ended() {
		return nil
	}

	return err
}

func (s *Service) read(ctx context.Context, call *conversation.Call, channel *voice.Channel, sock Socket, inbox chan<- input) error {
	for {
		messageType, data, err := sock.ReadMessage()
		if err != nil {
			return err
		}

		var in input

		switch messageType {
		case websocket.BinaryMessage:
			in.audio = data
		case websocket.TextMessage:
			var event voice.Event
			if err = json.Unmarshal(data, &event); err != nil {
				slog.Warn("Malformed live call event", "session_id", call.ID, "error", err)
				continue
			}

			switch event.Type {
			case voice.EventPlayed:
				channel.Acknowledge()
				continue
			case voice.EventMessage:
				in.text = event.Text
			default:
				slog.Debug("Ignoring live call event", "session_id", call.ID, "type", event.Type)
				continue
			}
		default:
			continue
		}

		select {
		case inbox <- in:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) handle(ctx context.Context, call *conversation.Call, channel *voice.Channel, speaker *voice.Speaker, in input) {
	start := time.Now()

	text := in.text
	if in.audio != nil {
		transcript, err := s.transcriber.Transcribe(ctx, in.audio)
		if err != nil {
			s.fail(ctx, call, channel, speaker, err)
			return
		}

		text = transcript
		_ = channel.Send(voice.Event{Type: voice.EventTranscript, Text: text})
	}

	if strings.TrimSpace(text) == "" {
		// nothing was said, keep listening
		_ = channel.Resume(ctx)
		return
	}

	result, err := s.conversation.Turn(ctx, call, text)
	if err != nil {
		s.fail(ctx, call, channel, speaker, err)
		return
	}

	slog.Info("Processed utterance",
		"session_id", call.ID,
		"text", text,
		"reply", result.Reply,
		"duration", time.Since(start),
	)
}

// fail tells the caller about a failed turn. The apology is not part of the transcript.
func (s *Service) fail(ctx context.Context, call *conversation.Call, channel *voice.Channel, speaker *voice.Speaker, err error) {
	if ctx.Err() != nil {
		return
	}

	slog.Warn("Live turn failed", "session_id", call.ID, "error", err)

	message := apperr.PublicMessage(err)
	_ = channel.Send(voice.Event{Type: voice.EventError, Code: apperr.Code(err), Text: message})

	if speakErr := speaker.Speak(ctx, message); speakErr != nil {
		slog.Warn("Failed to play apology", "session_id", call.ID, "error", speakErr)
	}
}

func isClosure(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, voice.ErrChannelClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

package speechkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

// SampleRate of the raw PCM audio expected by Send.
const SampleRate = 16000

type Handle struct {
	client stt.Recognizer_RecognizeStreamingClient
	cancel context.CancelFunc

	language string
	model    string
}

func (h *Handle) Send(content []byte) error {
	var req stt.StreamingRequest
	req.SetChunk(&stt.AudioChunk{
		Data: content,
	})

	return h.client.Send(&req)
}

// SendConfig must be the first message of a session: mono 16 bit PCM at SampleRate.
func (h *Handle) SendConfig() error {
	var audioFormatOpts stt.AudioFormatOptions
	audioFormatOpts.SetRawAudio(&stt.RawAudio{
		AudioEncoding:     stt.RawAudio_LINEAR16_PCM,
		SampleRateHertz:   SampleRate,
		AudioChannelCount: 1,
	})

	var eouClassifier stt.EouClassifierOptions
	eouClassifier.SetDefaultClassifier(&stt.DefaultEouClassifier{
		Type:                       stt.DefaultEouClassifier_DEFAULT,
		MaxPauseBetweenWordsHintMs: 800,
	})

	var req stt.StreamingRequest
	req.SetSessionOptions(&stt.StreamingOptions{
		RecognitionModel: &stt.RecognitionModelOptions{
			Model:       h.model,
			AudioFormat: &audioFormatOpts,
			LanguageRestriction: &stt.LanguageRestrictionOptions{
				RestrictionType: stt.LanguageRestrictionOptions_WHITELIST,
				LanguageCode:    []string{h.language},
			},
		},
		EouClassifier: &eouClassifier,
	})

	return h.client.Send(&req)
}

// CloseSend tells the recognizer no more audio is coming.
func (h *Handle) CloseSend() error {
	return h.client.CloseSend()
}

// Recv returns the phrases of the next final result, or nil for partial results.
func (h *Handle) Recv() ([]string, error) {
	res, err := h.client.Recv()
	if err != nil {
		return nil, fmt.Errorf("failed to receive stt: %w", err)
	}

	finalEvent := res.GetFinal()
	if finalEvent == nil {
		return nil, nil
	}

	// the first alternative is the most likely one
	for _, alt := range finalEvent.Alternatives {
		text := strings.TrimSpace(alt.Text)
		if text != "" {
			return []string{text}, nil
		}
	}

	return nil, nil
}

func (h *Handle) Close() error {
	h.cancel()
	return nil
}

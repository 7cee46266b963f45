package speechkit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"voicedesk/app/apperr"
	"voicedesk/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	ycsdk "github.com/yandex-cloud/go-sdk"
	"github.com/yandex-cloud/go-sdk/iamkey"
)

var ErrNotConfigured = errors.New("speech recognition is not configured")

var _ do.Shutdownable = (*YandexSpeechKit)(nil)

type YandexSpeechKit struct {
	cfg config.SpeechKit
	sdk *ycsdk.SDK
}

// NewClient builds the SpeechKit client from the service account key. Without a key
// file the service still starts and every recognition attempt fails with ErrNotConfigured.
func NewClient(di *do.Injector) (*YandexSpeechKit, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di).Yandex.SpeechKit

	keyBytes, err := os.ReadFile(cfg.ServiceAccountKey)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("SpeechKit service account key not found, voice input disabled",
			"path", cfg.ServiceAccountKey,
		)
		return &YandexSpeechKit{cfg: cfg}, nil
	}
	if err != nil {
		return nil, oops.Errorf("could not read service account key: %w", err)
	}

	var key iamkey.Key
	if err = json.Unmarshal(keyBytes, &key); err != nil {
		return nil, oops.Errorf("could not parse service account key: %w", err)
	}

	creds, err := ycsdk.ServiceAccountKey(&key)
	if err != nil {
		return nil, oops.Errorf("could not create service account credentials: %w", err)
	}

	sdk, err := ycsdk.Build(ctx, ycsdk.Config{
		Credentials: creds,
	})
	if err != nil {
		return nil, oops.Errorf("failed to create Yandex SDK: %w", err)
	}

	return &YandexSpeechKit{
		cfg: cfg,
		sdk: sdk,
	}, nil
}

// Start opens one streaming recognition session.
func (y *YandexSpeechKit) Start(ctx context.Context) (*Handle, error) {
	if y.sdk == nil {
		return nil, apperr.Upstream("speechkit", ErrNotConfigured)
	}

	ctx, cancel := context.WithCancel(ctx)

	client, err := y.sdk.AI().STTV3().Recognizer().RecognizeStreaming(ctx)
	if err != nil {
		cancel()
		return nil, apperr.Upstream("speechkit", err)
	}

	return &Handle{
		client:   client,
		cancel:   cancel,
		language: y.cfg.Language,
		model:    y.cfg.Model,
	}, nil
}

func (y *YandexSpeechKit) Shutdown() error {
	if y.sdk == nil {
		return nil
	}

	return y.sdk.Shutdown(context.Background())
}

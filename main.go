package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voicedesk/app/api"
	"voicedesk/app/client/speechkit"
	"voicedesk/app/config"
	"voicedesk/app/service/conversation"
	"voicedesk/app/service/engine"
	"voicedesk/app/service/extract"
	"voicedesk/app/service/records"
	"voicedesk/app/service/tasks"
	"voicedesk/app/service/transcribe"
	"voicedesk/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, speechkit.NewClient)
	do.Provide(di, transcribe.New)
	do.Provide(di, records.New)
	do.Provide(di, extract.New)
	do.Provide(di, tasks.New)
	do.Provide(di, conversation.New)
	do.Provide(di, engine.New)
	do.Provide(di, api.New)

	server := do.MustInvoke[*api.Server](di)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go func() {
		if err := server.Run(); err != nil {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("Service started", "addr", cfg.HTTP.Addr)

	<-appCtx.Done()
}

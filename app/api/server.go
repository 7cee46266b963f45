package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"voicedesk/app/apperr"
	"voicedesk/app/config"
	"voicedesk/app/service/conversation"
	"voicedesk/app/service/engine"
	"voicedesk/app/service/records"
	"voicedesk/app/service/session"
	"voicedesk/app/service/transcribe"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Server)(nil)

type Conversations interface {
	StartCall(ctx context.Context, firstName, lastName, email string) (*conversation.Call, string, bool, error)
	Call(id string) (*conversation.Call, error)
	Chat(ctx context.Context, message string, chat []session.ChatMessage, state session.State, email string) (*conversation.Result, error)
	Turn(ctx context.Context, call *conversation.Call, message string) (*conversation.Result, error)
	EndCall(ctx context.Context, id string) error
}

type Reporter interface {
	Report(ctx context.Context) (records.Report, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type LiveCalls interface {
	Run(ctx context.Context, call *conversation.Call, sock engine.Socket) error
}

type Server struct {
	appCtx   context.Context
	addr     string
	app      *fiber.App
	validate *validator.Validate

	conversations Conversations
	reporter      Reporter
	transcriber   Transcriber
	live          LiveCalls
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewServer(
		do.MustInvoke[context.Context](di),
		cfg.HTTP,
		do.MustInvoke[*conversation.Service](di),
		do.MustInvoke[*records.Service](di),
		do.MustInvoke[*transcribe.Service](di),
		do.MustInvoke[*engine.Service](di),
	), nil
}

func NewServer(
	appCtx context.Context,
	cfg config.HTTP,
	conversations Conversations,
	reporter Reporter,
	transcriber Transcriber,
	live LiveCalls,
) *Server {
	s := &Server{
		appCtx:        appCtx,
		addr:          cfg.Addr,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		conversations: conversations,
		reporter:      reporter,
		transcriber:   transcriber,
		live:          live,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "voicedesk",
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	if cfg.CorsOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowHeaders: "Origin, Content-Type, Accept",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	s.registerRoutes(s.app.Group("/api"))

	return s
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	slog.Info("HTTP server listening", "addr", s.addr)

	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := apperr.CodeInvalidInput
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			code = apperr.CodeNotFound
		case fiberErr.Code >= fiber.StatusInternalServerError:
			code = apperr.CodeInternal
		}

		return c.Status(fiberErr.Code).JSON(errorResponse{Error: code, Message: fiberErr.Message})
	}

	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	} else {
		slog.Debug("Request rejected",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}

	return c.Status(status).JSON(errorResponse{
		Error:   apperr.Code(err),
		Message: apperr.PublicMessage(err),
	})
}

// bind parses and validates a JSON request body.
func (s *Server) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.InvalidInput("api", "malformed request body")
	}

	if err := s.validate.Struct(out); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fieldErr := range invalid {
				fields = append(fields, fieldErr.Field())
			}

			return apperr.InvalidInput("api", "invalid fields: %s", strings.Join(fields, ", "))
		}

		return apperr.InvalidInput("api", "invalid request")
	}

	return nil
}

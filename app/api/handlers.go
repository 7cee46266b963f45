package api

import (
	"log/slog"

	"voicedesk/app/apperr"
	"voicedesk/app/service/conversation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const callLocal = "call"

func (s *Server) registerRoutes(r fiber.Router) {
	r.Get("/health", s.health)
	r.Post("/chat", s.chat)
	r.Post("/transcribe", s.transcribe)
	r.Get("/admin/report", s.report)

	calls := r.Group("/calls")
	calls.Post("", s.startCall)
	calls.Post("/:id/messages", s.message)
	calls.Post("/:id/end", s.endCall)
	calls.Get("/:id/ws", s.upgrade, websocket.New(s.liveCall))
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	result, err := s.conversations.Chat(c.UserContext(), req.Message, req.ChatLog, req.State, req.Email)
	if err != nil {
		return err
	}

	return c.JSON(newTurnResponse(result))
}

func (s *Server) startCall(c *fiber.Ctx) error {
	var req startCallRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	call, greeting, returning, err := s.conversations.StartCall(c.UserContext(), req.FirstName, req.LastName, req.Email)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(startCallResponse{
		SessionID: call.ID,
		Greeting:  greeting,
		Returning: returning,
	})
}

func (s *Server) message(c *fiber.Ctx) error {
	var req messageRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	call, err := s.conversations.Call(c.Params("id"))
	if err != nil {
		return err
	}

	result, err := s.conversations.Turn(c.UserContext(), call, req.Message)
	if err != nil {
		return err
	}

	return c.JSON(newTurnResponse(result))
}

func (s *Server) endCall(c *fiber.Ctx) error {
	if err := s.conversations.EndCall(c.UserContext(), c.Params("id")); err != nil {
		return err
	}

	return c.JSON(endCallResponse{Saved: true})
}

func (s *Server) transcribe(c *fiber.Ctx) error {
	// the request buffer is reused once the handler returns
	audio := append([]byte(nil), c.Body()...)

	transcript, err := s.transcriber.Transcribe(c.UserContext(), audio)
	if err != nil {
		return err
	}

	return c.JSON(transcribeResponse{Transcript: transcript})
}

func (s *Server) report(c *fiber.Ctx) error {
	report, err := s.reporter.Report(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(report)
}

// upgrade resolves the call before the websocket handshake so unknown sessions get a JSON error.
func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	call, err := s.conversations.Call(c.Params("id"))
	if err != nil {
		return err
	}

	c.Locals(callLocal, call)

	return c.Next()
}

func (s *Server) liveCall(conn *websocket.Conn) {
	call, ok := conn.Locals(callLocal).(*conversation.Call)
	if !ok {
		slog.Error("Live call without session", "error", apperr.NotFound("api", "call not resolved"))
		return
	}

	if err := s.live.Run(s.appCtx, call, conn); err != nil {
		slog.Warn("Live call ended with error",
			"session_id", call.ID,
			"error", err,
		)
	}
}

package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/rules"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Patient   string          `json:"patient"`
	Camera    bool            `json:"camera"`
	Mic       bool            `json:"mic"`
	Snapshot  engine.Snapshot `json:"snapshot"`
	Entries   int             `json:"entries"`
	Clients   int             `json:"dashboard_clients"`
	Ingest    any             `json:"ingest,omitempty"`
	GoogleDoc *bool           `json:"google_docs_connected,omitempty"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	camera, mic := s.deps.Engine.Inputs()
	resp := StatusResponse{
		Patient:  s.deps.Log.Patient(),
		Camera:   camera,
		Mic:      mic,
		Snapshot: s.deps.Engine.Snapshot(),
		Entries:  s.deps.Log.Len(),
	}
	if s.deps.Status != nil {
		resp.Clients = s.deps.Status.ClientCount()
	}
	if s.deps.Ingest != nil {
		resp.Ingest = s.deps.Ingest.Stats()
	}
	if s.deps.Docs != nil {
		connected := s.deps.Docs.Status().Connected
		resp.GoogleDoc = &connected
	}
	return c.JSON(resp)
}

// LogResponse is the conversation log, newest first.
type LogResponse struct {
	Patient string          `json:"patient"`
	Entries []convlog.Entry `json:"entries"`
	// Warning is set when the change could not be persisted; the
	// in-memory log still reflects it.
	Warning string `json:"warning,omitempty"`
}

func (s *Server) logResponse(err error) LogResponse {
	resp := LogResponse{Patient: s.deps.Log.Patient(), Entries: s.deps.Log.Entries()}
	if resp.Entries == nil {
		resp.Entries = []convlog.Entry{}
	}
	if err != nil {
		resp.Warning = err.Error()
	}
	return resp
}

func (s *Server) handleGetLog(c *fiber.Ctx) error {
	return c.JSON(s.logResponse(nil))
}

func (s *Server) handleClearLog(c *fiber.Ctx) error {
	err := s.deps.Log.Clear()
	if err != nil {
		s.logger.Warn("clear log not persisted", "error", err)
	}
	s.publishLog()
	return c.JSON(s.logResponse(err))
}

func (s *Server) handleExportLog(c *fiber.Ctx) error {
	x := s.deps.Log.Export(s.now())

	if c.Query("format") == "text" {
		name := strings.TrimSuffix(x.Filename(), ".json") + ".txt"
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(x.Text())
	}

	data, err := x.JSON()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", x.Filename()))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// PatientRequest selects the active patient.
type PatientRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSwitchPatient(c *fiber.Ctx) error {
	var req PatientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id is required"})
	}

	err := s.deps.Log.SwitchPatient(req.ID)
	if err != nil {
		s.logger.Warn("patient switch degraded", "patient", req.ID, "error", err)
	}
	s.publishLog()
	s.publishStatus()
	return c.JSON(s.logResponse(err))
}

// MessageRequest is a manually chosen phrase.
type MessageRequest struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// MessageResponse reports what happened to a manual phrase.
type MessageResponse struct {
	Entry   convlog.Entry `json:"entry"`
	Spoken  bool          `json:"spoken"`
	Warning string        `json:"warning,omitempty"`
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}
	switch rules.Category(req.Category) {
	case rules.Need, rules.Mood, rules.Signal:
	case "":
		req.Category = string(rules.Need)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "category must be need, mood or signal"})
	}

	ev, err := s.deps.Engine.Say(c.Context(), req.Message, req.Category, s.now())
	resp := MessageResponse{Entry: ev.Entry, Spoken: ev.Spoken}
	if err != nil {
		resp.Warning = err.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleCamera(c *fiber.Ctx) error {
	var snap engine.Snapshot
	switch c.Params("action") {
	case "start":
		snap = s.deps.Engine.StartCamera(s.now())
	case "stop":
		snap = s.deps.Engine.StopCamera(s.now())
	default:
		return fiber.ErrNotFound
	}
	return c.JSON(snap)
}

func (s *Server) handleMic(c *fiber.Ctx) error {
	var snap engine.Snapshot
	switch c.Params("action") {
	case "start":
		snap = s.deps.Engine.StartMic(s.now())
	case "stop":
		snap = s.deps.Engine.StopMic(s.now())
	default:
		return fiber.ErrNotFound
	}
	return c.JSON(snap)
}

var errDocsDisabled = errors.New("google docs export is not configured")

func (s *Server) handleDocsStatus(c *fiber.Ctx) error {
	if s.deps.Docs == nil {
		return c.JSON(fiber.Map{"configured": false, "connected": false})
	}
	st := s.deps.Docs.Status()
	return c.JSON(fiber.Map{"configured": true, "connected": st.Connected, "auth_url": st.AuthURL})
}

func (s *Server) handleDocsAuth(c *fiber.Ctx) error {
	if s.deps.Docs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errDocsDisabled.Error()})
	}
	st := s.deps.Docs.Status()
	if st.Connected {
		return c.Redirect("/")
	}
	return c.Redirect(st.AuthURL, fiber.StatusTemporaryRedirect)
}

func (s *Server) handleDocsCallback(c *fiber.Ctx) error {
	if s.deps.Docs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errDocsDisabled.Error()})
	}
	if err := s.deps.Docs.HandleCallback(c.Context(), c.Query("state"), c.Query("code")); err != nil {
		s.logger.Warn("google docs authorization failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("google docs connected")
	return c.Redirect("/")
}

func (s *Server) handleDocsExport(c *fiber.Ctx) error {
	if s.deps.Docs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errDocsDisabled.Error()})
	}
	x := s.deps.Log.Export(s.now())
	id, err := s.deps.Docs.Export(c.Context(), x)
	if errors.Is(err, convlog.ErrNotAuthenticated) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"document_id": id, "url": convlog.DocURL(id), "entries": len(x.Entries)})
}

func (s *Server) handleDocsDisconnect(c *fiber.Ctx) error {
	if s.deps.Docs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errDocsDisabled.Error()})
	}
	if err := s.deps.Docs.Disconnect(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"connected": false})
}

func (s *Server) publishLog() {
	if s.deps.Presenter != nil {
		s.deps.Presenter.PublishLog()
	}
}

func (s *Server) publishStatus() {
	if s.deps.Presenter != nil {
		camera, mic := s.deps.Engine.Inputs()
		s.deps.Presenter.PublishStatus(camera, mic)
	}
}

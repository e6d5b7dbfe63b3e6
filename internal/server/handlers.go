package server

import (
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"docchat/internal/domain"
	"docchat/internal/service"
	"docchat/internal/session"
)

type uploadRequest struct {
	Filename string `json:"filename" validate:"omitempty,max=255"`
	Text     string `json:"text"`
}

type uploadResponse struct {
	SessionID       string           `json:"session_id"`
	Filename        string           `json:"filename"`
	Summary         string           `json:"summary"`
	KeyTerms        []domain.KeyTerm `json:"key_terms"`
	Disclaimer      string           `json:"disclaimer,omitempty"`
	AnalysisPartial bool             `json:"analysis_partial"`
	Truncated       bool             `json:"truncated"`
	Passages        int              `json:"passages"`
}

type chatRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Question  string `json:"question" validate:"required"`
}

type source struct {
	Index  int     `json:"index"`
	Offset int     `json:"offset"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

type chatResponse struct {
	Answer  string   `json:"answer"`
	Sources []source `json:"sources"`
}

type turnResponse struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Sources    []source  `json:"sources"`
	AskedAt    time.Time `json:"asked_at"`
	AnsweredAt time.Time `json:"answered_at"`
}

type sessionResponse struct {
	SessionID       string         `json:"session_id"`
	Filename        string         `json:"filename"`
	CreatedAt       time.Time      `json:"created_at"`
	Summary         domain.Summary `json:"summary"`
	AnalysisPartial bool           `json:"analysis_partial"`
	Passages        int            `json:"passages"`
	History         []turnResponse `json:"history"`
}

type handler struct {
	port     Port
	validate *validator.Validate
}

func (h *handler) RegisterRoutes(r fiber.Router) {
	r.Get("/health", h.Health)

	d := r.Group("/demystify")
	d.Post("/upload", h.Upload)
	d.Post("/chat", h.Chat)

	s := r.Group("/sessions")
	s.Get("", h.ListSessions)
	s.Get("/:id", h.ShowSession)
	s.Delete("/:id", h.DeleteSession)
}

func (h *handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "sessions": len(h.port.List())})
}

func (h *handler) Upload(c *fiber.Ctx) error {
	filename, text, err := h.readDocument(c)
	if err != nil {
		return err
	}

	res, err := h.port.Ingest(c.UserContext(), filename, text)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(uploadResponse{
		SessionID:       res.SessionID,
		Filename:        res.Filename,
		Summary:         res.Summary.Synopsis,
		KeyTerms:        nonNilTerms(res.Summary.KeyTerms),
		Disclaimer:      res.Summary.Disclaimer,
		AnalysisPartial: res.SummaryFailed,
		Truncated:       res.Summary.Truncated,
		Passages:        res.Passages,
	})
}

// readDocument accepts either a multipart "file" field or a JSON body.
func (h *handler) readDocument(c *fiber.Ctx) (string, string, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		var req uploadRequest
		if err := c.BodyParser(&req); err != nil {
			return "", "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := h.validate.Struct(req); err != nil {
			return "", "", err
		}
		if !utf8.ValidString(req.Text) {
			return "", "", fiber.NewError(fiber.StatusBadRequest, "text must be valid UTF-8")
		}
		return req.Filename, req.Text, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "missing form file \"file\"")
	}
	if ext := strings.ToLower(filepath.Ext(fh.Filename)); ext != ".txt" {
		return "", "", fiber.NewError(fiber.StatusUnsupportedMediaType, "only .txt documents are supported")
	}
	f, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", err
	}
	if !utf8.Valid(data) {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "file must be UTF-8 text")
	}
	return filepath.Base(fh.Filename), string(data), nil
}

func (h *handler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}

	ans, err := h.port.Answer(c.UserContext(), req.SessionID, req.Question)
	if err != nil {
		return err
	}
	return c.JSON(chatResponse{Answer: ans.Text, Sources: toSources(ans.Grounding)})
}

func (h *handler) ListSessions(c *fiber.Ctx) error {
	infos := h.port.List()
	if infos == nil {
		infos = []session.Info{}
	}
	return c.JSON(fiber.Map{"sessions": infos})
}

func (h *handler) ShowSession(c *fiber.Ctx) error {
	snap, err := h.port.Session(c.Params("id"))
	if err != nil {
		return err
	}

	history := make([]turnResponse, len(snap.History))
	for i, t := range snap.History {
		history[i] = turnResponse{
			Question:   t.Question,
			Answer:     t.Answer,
			Sources:    toSources(t.Grounding),
			AskedAt:    t.AskedAt,
			AnsweredAt: t.AnsweredAt,
		}
	}
	summary := snap.Summary
	summary.KeyTerms = nonNilTerms(summary.KeyTerms)
	return c.JSON(sessionResponse{
		SessionID:       snap.ID,
		Filename:        snap.Document.Filename,
		CreatedAt:       snap.CreatedAt,
		Summary:         summary,
		AnalysisPartial: snap.SummaryFailed,
		Passages:        snap.Index.Len(),
		History:         history,
	})
}

func (h *handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.port.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toSources(results []domain.SearchResult) []source {
	out := make([]source, len(results))
	for i, r := range results {
		out[i] = source{
			Index:  r.Passage.Index,
			Offset: r.Passage.Offset,
			Score:  r.Score,
			Text:   r.Passage.Text,
		}
	}
	return out
}

func nonNilTerms(terms []domain.KeyTerm) []domain.KeyTerm {
	if terms == nil {
		return []domain.KeyTerm{}
	}
	return terms
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

var _ Port = (*service.Service)(nil)

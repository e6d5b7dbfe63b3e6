// Package server exposes the document chat service over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"docchat/internal/domain"
	"docchat/internal/service"
	"docchat/internal/session"
)

// SessionNotFoundMessage is returned to clients whose session expired or never existed.
const SessionNotFoundMessage = "Session not found. Please upload the document again."

// Port is the subset of the service the HTTP handlers call.
type Port interface {
	Ingest(ctx context.Context, filename, text string) (*service.IngestResult, error)
	Answer(ctx context.Context, id, question string) (*service.Answer, error)
	List() []session.Info
	Session(id string) (session.Snapshot, error)
	Delete(id string) error
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	MaxUploadBytes int
	CorsOrigins    string
	Logger         *zap.Logger
}

// Server serves the upload, chat and session routes.
type Server struct {
	app  *fiber.App
	addr string
	log  *zap.Logger
}

// New builds the fiber app, its middleware and routes over port.
func New(port Port, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.CorsOrigins == "" {
		opts.CorsOrigins = "*"
	}
	log := opts.Logger.Named("http")

	app := fiber.New(fiber.Config{
		AppName:               "docchat",
		BodyLimit:             opts.MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.CorsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(otelfiber.Middleware())
	app.Use(requestLogger(log))

	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	h := &handler{port: port, validate: v}
	h.RegisterRoutes(app)

	return &Server{app: app, addr: opts.Addr, log: log}
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.addr))
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status, _ = statusFor(err)
			}
		}
		rid, _ := c.Locals("requestid").(string)
		log.Info("request",
			zap.String("request_id", rid),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)))
		return err
	}
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status, body := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(status).JSON(body)
	}
}

func statusFor(err error) (int, fiber.Map) {
	var (
		ingest *domain.IngestionError
		verrs  validator.ValidationErrors
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, fiber.Map{"error": SessionNotFoundMessage}
	case errors.Is(err, domain.ErrTimeout):
		body := fiber.Map{"error": "the model service did not respond in time, please retry"}
		if errors.As(err, &ingest) {
			body["reason"] = string(ingest.Reason)
		}
		return fiber.StatusGatewayTimeout, body
	case errors.As(err, &ingest):
		return fiber.StatusUnprocessableEntity, fiber.Map{"error": ingest.Error(), "reason": string(ingest.Reason)}
	case errors.Is(err, domain.ErrEmptyQuestion):
		return fiber.StatusBadRequest, fiber.Map{"error": err.Error()}
	case errors.As(err, &verrs):
		return fiber.StatusBadRequest, fiber.Map{"error": validationMessage(verrs)}
	case errors.Is(err, domain.ErrGenerationFailed):
		return fiber.StatusBadGateway, fiber.Map{"error": "the model could not produce an answer"}
	default:
		return fiber.StatusInternalServerError, fiber.Map{"error": "internal server error"}
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fe.Field() + " failed validation: " + fe.Tag()
}

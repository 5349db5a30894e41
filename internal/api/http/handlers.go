package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/DeskShell/backend/internal/api/middleware"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dispatcher runs commands on behalf of a caller origin.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request, origin string) (any, error)
	Commands() []string
}

// StatusReader reads the current server snapshot.
type StatusReader interface {
	Query() lifecycle.Snapshot
}

// Handlers contains all HTTP handlers
type Handlers struct {
	surface Dispatcher
	status  StatusReader
	log     *zap.Logger
	service string
	version string
}

// NewHandlers creates a new handler set
func NewHandlers(surface Dispatcher, status StatusReader, logger *zap.Logger, service, version string) *Handlers {
	return &Handlers{
		surface: surface,
		status:  status,
		log:     logging.OrNop(logger),
		service: service,
		version: version,
	}
}

// Root reports that the daemon is up.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": h.service,
		"version": h.version,
	})
}

// Health reports daemon health together with the server snapshot. The
// daemon is healthy regardless of the backend's state.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"server": h.status.Query(),
	})
}

// ListCommands lists the canonical command names.
func (h *Handlers) ListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": h.surface.Commands()})
}

// Command runs a single command and replies with its result.
func (h *Handlers) Command(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxRequestSize)

	var req command.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command request"})
		return
	}

	result, err := h.surface.Dispatch(c.Request.Context(), req, c.GetHeader("Origin"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("Command failed",
				zap.String("request_id", middleware.GetRequestID(c).String()),
				zap.String("command", req.Command),
				zap.Error(err))
		}
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": messageFor(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, command.ErrUnknownCommand), errors.Is(err, command.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if errors.Is(err, command.ErrAccessDenied) {
		return "access denied"
	}
	return err.Error()
}

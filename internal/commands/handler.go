// handler.go answers requests arriving from the privileged side.
// Each command file carries one helper.Request; the handler decodes it, runs
// the matching action and writes a helper.Response back on the same channel.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doughall/rootipc/internal/helper"
	"github.com/doughall/rootipc/internal/version"
)

// Responder sends a response for a request ID. *simpleipc.Channel implements it.
type Responder interface {
	SendResponse(requestID, response string)
}

// Status is the output of a status request.
type Status struct {
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_s"`
	Processed int64  `json:"processed"`
	Journaled int    `json:"journaled,omitempty"`
}

// Handler processes requests from the privileged side.
type Handler struct {
	startedAt time.Time
	processed atomic.Int64
	logger    *slog.Logger

	mu        sync.RWMutex
	responder Responder
	journaled func() int
}

// NewHandler creates a new request handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		startedAt: time.Now(),
		logger:    logger.With(slog.String("component", "commands")),
	}
}

// SetResponder sets where responses are written. Until it is set, requests
// are still processed but their responses are dropped.
func (h *Handler) SetResponder(r Responder) {
	h.mu.Lock()
	h.responder = r
	h.mu.Unlock()
}

// SetJournalCounter reports the journal size in status responses.
func (h *Handler) SetJournalCounter(fn func() int) {
	h.mu.Lock()
	h.journaled = fn
	h.mu.Unlock()
}

// OnCommand has the simpleipc.CommandHandler signature.
func (h *Handler) OnCommand(requestID, command string) {
	resp := h.Handle(requestID, command)

	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to encode response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	r := h.responder
	h.mu.RUnlock()
	if r != nil {
		r.SendResponse(requestID, string(data))
	}
}

// Handle decodes and executes a single request.
func (h *Handler) Handle(requestID, command string) helper.Response {
	reqLogger := h.logger.With(slog.String("request_id", requestID))

	var req helper.Request
	if err := json.Unmarshal([]byte(command), &req); err != nil {
		reqLogger.Warn("invalid request", slog.String("error", err.Error()))
		return helper.Response{Error: fmt.Sprintf("invalid request: %s", err.Error())}
	}

	h.processed.Add(1)
	reqLogger.Debug("handling request", slog.String("type", string(req.Type)))

	switch req.Type {
	case helper.RequestTypePing:
		return helper.Response{Success: true, Output: json.RawMessage(`"pong"`)}

	case helper.RequestTypeEcho:
		return helper.Response{Success: true, Output: req.Payload}

	case helper.RequestTypeStatus:
		out, err := json.Marshal(h.status())
		if err != nil {
			return helper.Response{Error: err.Error()}
		}
		return helper.Response{Success: true, Output: out}

	case helper.RequestTypeHost:
		info, err := collectHost(context.Background(), os.Getpid(), os.Getuid())
		if err != nil {
			reqLogger.Warn("partial host info", slog.String("error", err.Error()))
		}
		out, err := json.Marshal(info)
		if err != nil {
			return helper.Response{Error: err.Error()}
		}
		return helper.Response{Success: true, Output: out}

	case helper.RequestTypeNotify:
		reqLogger.Info("notification from privileged side",
			slog.String("payload", string(req.Payload)),
		)
		return helper.Response{Success: true}

	default:
		reqLogger.Warn("unknown request type", slog.String("type", string(req.Type)))
		return helper.Response{Error: fmt.Sprintf("unknown request type: %s", req.Type)}
	}
}

func (h *Handler) status() Status {
	s := Status{
		Version:   version.Version,
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
		Processed: h.processed.Load(),
	}
	h.mu.RLock()
	if h.journaled != nil {
		s.Journaled = h.journaled()
	}
	h.mu.RUnlock()
	return s
}

// Processed returns the number of well-formed requests handled.
func (h *Handler) Processed() int64 {
	return h.processed.Load()
}

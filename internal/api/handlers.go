package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// Handlers contains HTTP handlers for the API
type Handlers struct {
	hub *core.Core
}

// NewHandlers creates a new Handlers instance
func NewHandlers(hub *core.Core) *Handlers {
	return &Handlers{hub: hub}
}

// page resolves the registry page a request targets, writing the error response on failure
func (h *Handlers) page(ctx context.Context, w http.ResponseWriter, req PageRequest) (engine.Page, bool) {
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "context_id is required")
		return nil, false
	}

	page, err := h.hub.Page(ctx, req.ContextID, req.Session, req.headless())
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return page, true
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status handles GET /status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.hub.Status(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Navigate handles POST /navigate
func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "url is required")
		return
	}

	page, ok := h.page(r.Context(), w, req.PageRequest)
	if !ok {
		return
	}

	result, err := h.hub.Actions.Navigate(page, req.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Screenshot handles POST /screenshot
func (h *Handlers) Screenshot(w http.ResponseWriter, r *http.Request) {
	var req ScreenshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	page, ok := h.page(r.Context(), w, req.PageRequest)
	if !ok {
		return
	}

	data, err := h.hub.Actions.Screenshot(page, req.FullPage)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScreenshotResponse{
		ContextID:  req.ContextID,
		Screenshot: base64.StdEncoding.EncodeToString(data),
		Format:     "png",
		Size:       len(data),
	})
}

// Click handles POST /click
func (h *Handlers) Click(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "selector is required")
		return
	}

	page, ok := h.page(r.Context(), w, req.PageRequest)
	if !ok {
		return
	}

	if err := h.hub.Actions.Click(page, req.Selector); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Type handles POST /type
func (h *Handlers) Type(w http.ResponseWriter, r *http.Request) {
	var req TypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "selector is required")
		return
	}

	page, ok := h.page(r.Context(), w, req.PageRequest)
	if !ok {
		return
	}

	if err := h.hub.Actions.Type(page, req.Selector, req.Text, req.Humanize); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Scroll handles POST /scroll
func (h *Handlers) Scroll(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	page, ok := h.page(r.Context(), w, req)
	if !ok {
		return
	}

	distance, err := h.hub.Actions.Scroll(page)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScrollResponse{ContextID: req.ContextID, Distance: distance})
}

// Evaluate handles POST /evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Script == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "script is required")
		return
	}

	page, ok := h.page(r.Context(), w, req.PageRequest)
	if !ok {
		return
	}

	result, err := h.hub.Actions.Evaluate(page, req.Script)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{ContextID: req.ContextID, Result: result})
}

// Content handles POST /content
func (h *Handlers) Content(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	page, ok := h.page(r.Context(), w, req)
	if !ok {
		return
	}

	content, err := h.hub.Actions.Content(page)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// ListSessions handles GET /sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.hub.Store.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: records, Count: len(records)})
}

// DeleteSession handles DELETE /sessions/{name}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !storage.ValidName(name) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session name")
		return
	}

	deleted, err := h.hub.Store.Delete(r.Context(), name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session "+name+" not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartLogin handles POST /sessions/{name}/login
func (h *Handlers) StartLogin(w http.ResponseWriter, r *http.Request) {
	var req StartLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	result, err := h.hub.Logins.Start(r.Context(), chi.URLParam(r, "name"), req.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// SaveLogin handles POST /sessions/{name}/save
func (h *Handlers) SaveLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.hub.Logins.Save(r.Context(), name); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "session " + name + " saved"})
}

// CloseLogin handles POST /sessions/{name}/close
func (h *Handlers) CloseLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.hub.Logins.Close(r.Context(), name); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "session " + name + " saved and closed"})
}

// ListLogins handles GET /logins
func (h *Handlers) ListLogins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Logins.List())
}

// CloseContext handles POST /contexts/{id}/close
func (h *Handlers) CloseContext(w http.ResponseWriter, r *http.Request) {
	contextID := chi.URLParam(r, "id")

	var sessionName *string
	if r.URL.Query().Has("session") {
		value := r.URL.Query().Get("session")
		sessionName = &value
	}

	closed := h.hub.Registry.Close(contextID, sessionName)
	writeJSON(w, http.StatusOK, CloseContextResponse{ContextID: contextID, Closed: closed})
}

// Shutdown handles POST /shutdown. It closes every context and both pooled browsers, then responds.
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	count := h.hub.Registry.Count()
	h.hub.Registry.CloseAll()
	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("closed %d contexts", count),
	})
}

// Tabs handles GET /tabs
func (h *Handlers) Tabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Bridge.Tabs(r.Context()))
}

// LaunchChrome handles POST /chrome/launch
func (h *Handlers) LaunchChrome(w http.ResponseWriter, r *http.Request) {
	result, err := h.hub.Bridge.LaunchRealChrome(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ConnectChrome handles POST /chrome/connect
func (h *Handlers) ConnectChrome(w http.ResponseWriter, r *http.Request) {
	result, err := h.hub.Bridge.ConnectChrome(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package api

import (
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// Request Types

// PageRequest selects the registry page an action runs on
type PageRequest struct {
	ContextID string `json:"context_id"`
	Session   string `json:"session,omitempty"`
	// Headless defaults to true
	Headless *bool `json:"headless,omitempty"`
}

func (p PageRequest) headless() bool {
	return p.Headless == nil || *p.Headless
}

// NavigateRequest for POST /navigate
type NavigateRequest struct {
	PageRequest
	URL string `json:"url"`
}

// ScreenshotRequest for POST /screenshot
type ScreenshotRequest struct {
	PageRequest
	FullPage bool `json:"full_page,omitempty"`
}

// ClickRequest for POST /click
type ClickRequest struct {
	PageRequest
	Selector string `json:"selector"`
}

// TypeRequest for POST /type
type TypeRequest struct {
	PageRequest
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Humanize bool   `json:"humanize,omitempty"`
}

// EvaluateRequest for POST /evaluate
type EvaluateRequest struct {
	PageRequest
	Script string `json:"script"`
}

// StartLoginRequest for POST /sessions/{name}/login
type StartLoginRequest struct {
	URL string `json:"url"`
}

// Response Types

// HealthResponse returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ScreenshotResponse returned after screenshot capture
type ScreenshotResponse struct {
	ContextID  string `json:"context_id"`
	Screenshot string `json:"screenshot"` // base64 encoded PNG
	Format     string `json:"format"`
	Size       int    `json:"size"` // Size in bytes (before encoding)
}

// EvaluateResponse returned after script evaluation
type EvaluateResponse struct {
	ContextID string `json:"context_id"`
	Result    any    `json:"result"`
}

// ScrollResponse returned after scrolling
type ScrollResponse struct {
	ContextID string  `json:"context_id"`
	Distance  float64 `json:"distance"`
}

// ListSessionsResponse returned with all saved sessions
type ListSessionsResponse struct {
	Sessions []storage.Record `json:"sessions"`
	Count    int              `json:"count"`
}

// CloseContextResponse returned by POST /contexts/{id}/close
type CloseContextResponse struct {
	ContextID string `json:"context_id"`
	Closed    int    `json:"closed"`
}

// SuccessResponse for operations that just need success confirmation
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Error Types

// ErrorResponse for all error cases
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code     string `json:"code"`    // Machine-readable error code
	Message  string `json:"message"` // Human-readable message
	Guidance string `json:"guidance,omitempty"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeLaunchFailed      = "LAUNCH_FAILED"
	ErrCodeAttachFailed      = "ATTACH_FAILED"
	ErrCodeNavigationFailed  = "NAVIGATION_FAILED"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

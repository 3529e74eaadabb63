// Package cdp discovers a chrome started with --remote-debugging-port.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/failure"
)

// Guidance tells an operator how to expose a debuggable chrome
const Guidance = "Start Chrome with remote debugging enabled, for example: " +
	"google-chrome --remote-debugging-port=9222 --user-data-dir=/tmp/chrome-debug"

// DefaultTimeout bounds a probe when the caller passes zero
const DefaultTimeout = 3 * time.Second

// Probe queries /json/version and returns the browser-level info.
// An unreachable endpoint is an AttachFailure carrying Guidance.
func Probe(ctx context.Context, endpoint string, timeout time.Duration) (*VersionInfo, error) {
	var info VersionInfo
	if err := getJSON(ctx, endpoint, "/json/version", timeout, &info); err != nil {
		return nil, err
	}

	if info.WebSocketDebuggerURL == "" {
		return nil, failure.New(failure.AttachFailure, "cdp probe", "no browser WebSocket URL found").
			WithGuidance(Guidance)
	}
	return &info, nil
}

// ListTargets queries /json and keeps the page targets in the order chrome reports them
func ListTargets(ctx context.Context, endpoint string, timeout time.Duration) ([]Target, error) {
	var targets []Target
	if err := getJSON(ctx, endpoint, "/json", timeout, &targets); err != nil {
		return nil, err
	}

	pages := make([]Target, 0, len(targets))
	for _, target := range targets {
		if target.Type == "page" {
			pages = append(pages, target)
		}
	}
	return pages, nil
}

// Normalize returns endpoint as an http base URL without a trailing slash
func Normalize(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return "http://localhost:9222"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return endpoint
}

func getJSON(ctx context.Context, endpoint, path string, timeout time.Duration, out any) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := Normalize(endpoint) + path
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure.Wrap(failure.AttachFailure, "cdp probe", "invalid debugging endpoint", err)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return failure.Wrap(failure.AttachFailure, "cdp probe",
			"could not reach Chrome at "+Normalize(endpoint), err).WithGuidance(Guidance)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return failure.New(failure.AttachFailure, "cdp probe",
			fmt.Sprintf("unexpected status code: %d", response.StatusCode)).WithGuidance(Guidance)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return failure.Wrap(failure.AttachFailure, "cdp probe", "endpoint did not answer like a debugging port", err)
	}
	return nil
}

package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dhruvsoni1802/browser-hub/internal/bridge"
	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
)

// Tools holds the tool handlers for one transport
type Tools struct {
	hub     *core.Core
	resolve PageResolver
}

// NewTools binds the handlers to hub, resolving pages through resolve
func NewTools(hub *core.Core, resolve PageResolver) *Tools {
	return &Tools{hub: hub, resolve: resolve}
}

// pageOptions are shared by every tool that acts on a page
func pageOptions(opts ...mcplib.ToolOption) []mcplib.ToolOption {
	return append(opts,
		mcplib.WithString("session", mcplib.Description("Saved session whose cookies and storage seed the browser context")),
		mcplib.WithBoolean("headless", mcplib.Description("Use the headless browser (default true)")),
		mcplib.WithString("url_pattern", mcplib.Description("Prefer an already open tab whose URL contains this text (HTTP transport)")),
	)
}

// RegisterTools adds every browser tool to srv
func RegisterTools(srv *server.MCPServer, t *Tools) {
	srv.AddTool(mcplib.NewTool("browser_navigate", pageOptions(
		mcplib.WithDescription("Navigate the page to a URL and wait for it to load"),
		mcplib.WithString("url", mcplib.Required(), mcplib.Description("Absolute URL to open")),
	)...), t.Navigate)

	srv.AddTool(mcplib.NewTool("browser_screenshot", pageOptions(
		mcplib.WithDescription("Capture a PNG screenshot of the page"),
		mcplib.WithBoolean("full_page", mcplib.Description("Capture the whole scrollable page")),
	)...), t.Screenshot)

	srv.AddTool(mcplib.NewTool("browser_click", pageOptions(
		mcplib.WithDescription("Click the first element matching a selector"),
		mcplib.WithString("selector", mcplib.Required(), mcplib.Description("CSS or Playwright selector")),
	)...), t.Click)

	srv.AddTool(mcplib.NewTool("browser_type", pageOptions(
		mcplib.WithDescription("Type text into the element matching a selector"),
		mcplib.WithString("selector", mcplib.Required(), mcplib.Description("CSS or Playwright selector")),
		mcplib.WithString("text", mcplib.Required(), mcplib.Description("Text to enter")),
		mcplib.WithBoolean("humanize", mcplib.Description("Type key by key with human-like delays")),
	)...), t.Type)

	srv.AddTool(mcplib.NewTool("browser_scroll", pageOptions(
		mcplib.WithDescription("Scroll the page down like a person reading it"),
	)...), t.Scroll)

	srv.AddTool(mcplib.NewTool("browser_evaluate", pageOptions(
		mcplib.WithDescription("Evaluate a JavaScript expression in the page and return its value"),
		mcplib.WithString("script", mcplib.Required(), mcplib.Description("JavaScript expression or function body")),
	)...), t.Evaluate)

	srv.AddTool(mcplib.NewTool("browser_content", pageOptions(
		mcplib.WithDescription("Return the page URL, title and HTML"),
	)...), t.Content)

	srv.AddTool(mcplib.NewTool("browser_sessions",
		mcplib.WithDescription("List saved login sessions"),
	), t.Sessions)

	srv.AddTool(mcplib.NewTool("browser_login_start",
		mcplib.WithDescription("Open a visible browser window so the user can log in by hand"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Session name to save the login under")),
		mcplib.WithString("url", mcplib.Required(), mcplib.Description("Login page URL")),
	), t.LoginStart)

	srv.AddTool(mcplib.NewTool("browser_login_save",
		mcplib.WithDescription("Save the cookies and storage of an open login window, keeping it open"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Session name")),
	), t.LoginSave)

	srv.AddTool(mcplib.NewTool("browser_login_close",
		mcplib.WithDescription("Save an open login window and close it"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Session name")),
	), t.LoginClose)

	srv.AddTool(mcplib.NewTool("browser_tabs",
		mcplib.WithDescription("List tabs of the attached Chrome or the managed Chrome profile"),
	), t.Tabs)

	srv.AddTool(mcplib.NewTool("browser_launch_chrome",
		mcplib.WithDescription("Launch Chrome on the hub's persistent profile, reusing it when already open"),
	), t.LaunchChrome)

	srv.AddTool(mcplib.NewTool("browser_connect_chrome",
		mcplib.WithDescription("Attach to the user's Chrome through its remote debugging endpoint"),
	), t.ConnectChrome)

	srv.AddTool(mcplib.NewTool("browser_status",
		mcplib.WithDescription("Report browsers, contexts, logins and bridge state"),
	), t.Status)
}

// page resolves the target page from the common arguments
func (t *Tools) page(ctx context.Context, request mcplib.CallToolRequest) (engine.Page, error) {
	return t.resolve(ctx, bridge.Request{
		URLPattern: request.GetString("url_pattern", ""),
		Session:    request.GetString("session", ""),
		Headless:   request.GetBool("headless", true),
	})
}

func (t *Tools) Navigate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	result, err := t.hub.Actions.Navigate(page, url)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (t *Tools) Screenshot(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	data, err := t.hub.Actions.Screenshot(page, request.GetBool("full_page", false))
	if err != nil {
		return toolError(err), nil
	}

	text := fmt.Sprintf("screenshot of %s (%d bytes)", page.URL(), len(data))
	return mcplib.NewToolResultImage(text, base64.StdEncoding.EncodeToString(data), "image/png"), nil
}

func (t *Tools) Click(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	selector, err := request.RequireString("selector")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	if err := t.hub.Actions.Click(page, selector); err != nil {
		return toolError(err), nil
	}
	return mcplib.NewToolResultText("clicked " + selector), nil
}

func (t *Tools) Type(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	selector, err := request.RequireString("selector")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	if err := t.hub.Actions.Type(page, selector, text, request.GetBool("humanize", false)); err != nil {
		return toolError(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf("typed %d characters into %s", len([]rune(text)), selector)), nil
}

func (t *Tools) Scroll(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	distance, err := t.hub.Actions.Scroll(page)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]float64{"distance": distance})
}

func (t *Tools) Evaluate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	script, err := request.RequireString("script")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	value, err := t.hub.Actions.Evaluate(page, script)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"result": value})
}

func (t *Tools) Content(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	page, err := t.page(ctx, request)
	if err != nil {
		return toolError(err), nil
	}
	content, err := t.hub.Actions.Content(page)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(content)
}

func (t *Tools) Sessions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	records, err := t.hub.Store.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"sessions": records, "count": len(records)})
}

func (t *Tools) LoginStart(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	url, err := request.RequireString("url")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	result, err := t.hub.Logins.Start(ctx, name, url)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (t *Tools) LoginSave(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if err := t.hub.Logins.Save(ctx, name); err != nil {
		return toolError(err), nil
	}
	return mcplib.NewToolResultText("session " + name + " saved"), nil
}

func (t *Tools) LoginClose(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if err := t.hub.Logins.Close(ctx, name); err != nil {
		return toolError(err), nil
	}
	return mcplib.NewToolResultText("session " + name + " saved and closed"), nil
}

func (t *Tools) Tabs(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(t.hub.Bridge.Tabs(ctx))
}

func (t *Tools) LaunchChrome(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	result, err := t.hub.Bridge.LaunchRealChrome(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (t *Tools) ConnectChrome(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	result, err := t.hub.Bridge.ConnectChrome(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (t *Tools) Status(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := t.hub.Status(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(status)
}

// toolError reports err to the model, with the operator hint appended when there is one
func toolError(err error) *mcplib.CallToolResult {
	msg := err.Error()
	if guidance := failure.GuidanceOf(err); guidance != "" {
		msg += "\n\n" + guidance
	}
	return mcplib.NewToolResultError(msg)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

// Package mcp exposes the browser hub as Model Context Protocol tools over stdio and streamable HTTP.
package mcp

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dhruvsoni1802/browser-hub/internal/bridge"
	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
)

const (
	serverName = "browser-hub"

	// StdioContextID owns every registry entry created by the stdio transport
	StdioContextID = "mcp-stdio"

	// EndpointPath is where the streamable HTTP transport is mounted
	EndpointPath = "/mcp"
)

// PageResolver picks the page a tool call acts on
type PageResolver func(ctx context.Context, req bridge.Request) (engine.Page, error)

// RegistryResolver serves pages from the context registry under StdioContextID
func RegistryResolver(hub *core.Core) PageResolver {
	return func(ctx context.Context, req bridge.Request) (engine.Page, error) {
		return hub.Page(ctx, StdioContextID, req.Session, req.Headless)
	}
}

// BridgeResolver prefers the user's real Chrome and falls back to the registry
func BridgeResolver(hub *core.Core) PageResolver {
	return func(ctx context.Context, req bridge.Request) (engine.Page, error) {
		return hub.Bridge.SharedPage(ctx, req)
	}
}

// NewServer builds an MCP server with every browser tool registered
func NewServer(hub *core.Core, resolve PageResolver, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
	)
	RegisterTools(srv, NewTools(hub, resolve))
	return srv
}

// ServeStdio blocks serving tools on stdin/stdout
func ServeStdio(hub *core.Core, version string) error {
	return server.ServeStdio(NewServer(hub, RegistryResolver(hub), version))
}

// HTTPHandler returns the streamable HTTP transport, to be mounted at EndpointPath
func HTTPHandler(hub *core.Core, version string) http.Handler {
	return server.NewStreamableHTTPServer(
		NewServer(hub, BridgeResolver(hub), version),
		server.WithEndpointPath(EndpointPath),
	)
}

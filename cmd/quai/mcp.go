package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/quai/favicon"
	"github.com/hazyhaar/quai/idle"
	"github.com/hazyhaar/quai/kit"
	"github.com/hazyhaar/quai/panel"
	"github.com/hazyhaar/quai/registry"
)

// buildMCPServer assembles the quai tool surface: registry CRUD and
// transfer, favicon resolution, and the panel state probe.
func buildMCPServer(reg *registry.Service, fav *favicon.Service, ctl *idle.Controller, pnl *panel.Panel) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "quai",
		Version: "1.0.0",
	}, nil)
	reg.RegisterMCP(srv)
	fav.RegisterMCP(srv)
	registerPanelState(srv, ctl, pnl)
	return srv
}

// registerPanelState exposes a read-only view of the idle machine and the
// embedded panel: state, loaded and pending URLs, last hibernation snapshot.
func registerPanelState(srv *mcp.Server, ctl *idle.Controller, pnl *panel.Panel) {
	tool := &mcp.Tool{
		Name:        "quai_panel_state",
		Description: "Report the embedded panel state: active or hibernated, loaded and pending URLs, last hibernation snapshot",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		snap := ctl.Snapshot()
		out := map[string]any{
			"enabled":     pnl != nil,
			"state":       snap.State,
			"pending_url": snap.PendingURL,
		}
		if pnl != nil {
			out["loaded_url"] = pnl.LoadedURL()
			if last := pnl.LastSnapshot(); last != nil {
				out["snapshot"] = last
			}
		}
		return out, nil
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

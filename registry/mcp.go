package registry

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/quai/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all site registry tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerListSites(srv)
	svc.registerAddSite(srv)
	svc.registerUpdateSite(srv)
	svc.registerRemoveSite(srv)
	svc.registerReorderSites(srv)
	svc.registerExportSites(srv)
	svc.registerImportSites(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (svc *Service) registerListSites(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "quai_list_sites",
		Description: "List all sidebar sites in display order",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.List(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerAddSite(srv *mcp.Server) {
	type req struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Color string `json:"color"`
	}

	tool := &mcp.Tool{
		Name:        "quai_add_site",
		Description: "Add a site to the end of the sidebar",
		InputSchema: inputSchema(map[string]any{
			"name":  map[string]any{"type": "string", "description": "Display name"},
			"url":   map[string]any{"type": "string", "description": "Site URL; https:// is assumed when no scheme is given"},
			"color": map[string]any{"type": "string", "description": "Accent color, e.g. #ff6600 (optional)"},
		}, []string{"name", "url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.Add(ctx, p.Name, p.URL, p.Color)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerUpdateSite(srv *mcp.Server) {
	type req struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		URL   string `json:"url"`
		Color string `json:"color"`
	}

	tool := &mcp.Tool{
		Name:        "quai_update_site",
		Description: "Update a site's name, URL, or color. Empty fields keep their current value. Unknown IDs are a no-op.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Site ID"},
			"name":  map[string]any{"type": "string", "description": "New display name (optional)"},
			"url":   map[string]any{"type": "string", "description": "New URL (optional)"},
			"color": map[string]any{"type": "string", "description": "New accent color (optional)"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		updated, err := svc.Update(ctx, &Site{ID: p.ID, Name: p.Name, URL: p.URL, Color: p.Color})
		if err != nil {
			return nil, err
		}
		return map[string]any{"updated": updated}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerRemoveSite(srv *mcp.Server) {
	type req struct {
		ID string `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "quai_remove_site",
		Description: "Remove a site from the sidebar. Reports whether the removed site was the active one. Unknown IDs are a no-op.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Site ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		removedActive, err := svc.Remove(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed_active": removedActive}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerReorderSites(srv *mcp.Server) {
	type req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}

	tool := &mcp.Tool{
		Name:        "quai_reorder_sites",
		Description: "Move the site at index `from` to index `to` (splice semantics: the site is removed first, then inserted). Returns the new order.",
		InputSchema: inputSchema(map[string]any{
			"from": map[string]any{"type": "integer", "description": "Current index"},
			"to":   map[string]any{"type": "integer", "description": "Target index"},
		}, []string{"from", "to"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.Reorder(ctx, p.From, p.To); err != nil {
			return nil, err
		}
		return svc.List(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerExportSites(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "quai_export_sites",
		Description: "Export the sidebar as the sidebar-sites.json format: a JSON array of {id, name, url, color}.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		data, err := svc.ExportJSON(ctx)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerImportSites(srv *mcp.Server) {
	type req struct {
		Sites json.RawMessage `json:"sites"`
		Mode  string          `json:"mode"`
	}

	tool := &mcp.Tool{
		Name:        "quai_import_sites",
		Description: "Import a sidebar-sites.json array. Mode `replace` swaps the whole list; `merge` (default) appends entries whose URL is new.",
		InputSchema: inputSchema(map[string]any{
			"sites": map[string]any{"type": "array", "description": "Array of {id?, name, url, color?} entries"},
			"mode":  map[string]any{"type": "string", "description": "replace or merge (default merge)"},
		}, []string{"sites"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		mode := ImportMode(p.Mode)
		if p.Mode == "" {
			mode = ImportMerge
		}
		return svc.ImportJSON(ctx, p.Sites, mode)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

package favicon

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/quai/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the favicon tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerResolveFavicon(srv)
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

func (svc *Service) registerResolveFavicon(srv *mcp.Server) {
	type req struct {
		URL string `json:"url"`
	}

	tool := &mcp.Tool{
		Name:        "quai_resolve_favicon",
		Description: "Resolve the favicon for a site URL. Returns a data: URL served from cache when fresh, or null when no source yields an icon.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Site URL (https://…)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		resp := struct {
			Icon *string `json:"icon"`
		}{}
		if icon := svc.Resolve(ctx, p.URL); icon != "" {
			resp.Icon = &icon
		}
		return resp, nil
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

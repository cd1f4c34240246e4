// CLAUDE:SUMMARY Registers the scraper MCP tools: run status, start/pause/resume/stop, site listing, run log and staged products.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/supplyscrape/kit"
)

// RegisterMCP registers the scraper tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatusTool(srv)
	s.registerListStatusesTool(srv)
	s.registerStartTool(srv)
	s.registerControlTool(srv, "scrape_pause", "Pause the running scrape of a site. It stops at its next checkpoint until resumed.", s.PauseSite)
	s.registerControlTool(srv, "scrape_resume", "Resume a paused scrape.", s.ResumeSite)
	s.registerControlTool(srv, "scrape_stop", "Stop the running or paused scrape of a site.", s.StopSite)
	s.registerListSitesTool(srv)
	s.registerRunsTool(srv)
	s.registerStagedTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

var siteIDProp = map[string]any{"type": "string", "description": "Site identifier"}

type siteRequest struct {
	SiteID string `json:"site_id"`
}

func decodeSite(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r siteRequest
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.SiteID == "" {
		return nil, errors.New("site_id is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (s *Service) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name), kit.Recover(s.logger))(e)
}

// --- status ---

func (s *Service) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_status",
		Description: "Current run state of one site: idle, running, paused, stopped, completed or error.",
		InputSchema: inputSchema(map[string]any{"site_id": siteIDProp}, []string{"site_id"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return s.Status(req.(*siteRequest).SiteID), nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decodeSite)
}

func (s *Service) registerListStatusesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_list_statuses",
		Description: "Run state of every site that has run since the service started.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return orEmpty(s.Statuses()), nil
	}
	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decode)
}

// --- control ---

func (s *Service) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_start",
		Description: "Start a scrape of a site now, ignoring its schedule. Fails if a run is already active.",
		InputSchema: inputSchema(map[string]any{"site_id": siteIDProp}, []string{"site_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		runID, err := s.StartSite(ctx, req.(*siteRequest).SiteID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"run_id": runID}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decodeSite)
}

type controlResponse struct {
	Changed bool      `json:"changed"`
	Status  RunStatus `json:"status"`
}

func (s *Service) registerControlTool(srv *mcp.Server, name, desc string, fn func(string) bool) {
	tool := &mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: inputSchema(map[string]any{"site_id": siteIDProp}, []string{"site_id"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		id := req.(*siteRequest).SiteID
		changed := fn(id)
		return controlResponse{Changed: changed, Status: s.Status(id)}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(name, endpoint), decodeSite)
}

// --- sites ---

func (s *Service) registerListSitesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_list_sites",
		Description: "List configured supplier sites with their schedule, strategies and active flag.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		sites, err := s.Sites(ctx)
		if err != nil {
			return nil, err
		}
		return orEmpty(sites), nil
	}
	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decode)
}

// --- runs ---

type listRequest struct {
	SiteID string `json:"site_id,omitempty"`
	RunID  string `json:"run_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func decodeList(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r listRequest
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (s *Service) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_runs",
		Description: "Recent scrape runs, newest first, with strategy used and found/staged/failed counts.",
		InputSchema: inputSchema(map[string]any{
			"site_id": map[string]any{"type": "string", "description": "Only runs of this site"},
			"limit":   map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		runs, err := s.Runs(ctx, r.SiteID, r.Limit)
		if err != nil {
			return nil, err
		}
		return orEmpty(runs), nil
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decodeList)
}

func (s *Service) registerStagedTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_staged",
		Description: "Staged products of a site (newest first) or of one run (staging order).",
		InputSchema: inputSchema(map[string]any{
			"site_id": map[string]any{"type": "string", "description": "Site identifier"},
			"run_id":  map[string]any{"type": "string", "description": "Run identifier; takes precedence over site_id"},
			"limit":   map[string]any{"type": "integer", "description": "Max results for site listing (default 100)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		switch {
		case r.RunID != "":
			products, err := s.StagedByRun(ctx, r.RunID)
			return orEmpty(products), err
		case r.SiteID != "":
			products, err := s.Staged(ctx, r.SiteID, r.Limit)
			return orEmpty(products), err
		default:
			return nil, fmt.Errorf("site_id or run_id is required")
		}
	}
	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decodeList)
}

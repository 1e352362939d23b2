package feedkeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedkeeper/audit"
	"github.com/hazyhaar/feedkeeper/kit"
)

// RegisterMCP registers the read-only feedkeeper tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerWindow(srv)
	svc.registerListSources(srv)
	svc.registerEnrichmentQueue(srv)
	svc.registerStats(srv)
}

func (svc *Service) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mws := []kit.Middleware{kit.WithLogging(svc.logger, tool.Name)}
	if svc.audit != nil {
		mws = append(mws, audit.Middleware(svc.audit, tool.Name))
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(mws...)(endpoint), decode)
}

type windowRequest struct {
	Start          string `json:"start,omitempty" jsonschema:"description=Window start (YYYY-MM-DD or RFC 3339). Defaults to the period containing today."`
	End            string `json:"end,omitempty" jsonschema:"description=Exclusive window end (YYYY-MM-DD or RFC 3339)"`
	Period         string `json:"period,omitempty" jsonschema:"enum=daily,enum=weekly,enum=monthly,description=Period used when start/end are not given"`
	MaxRecords     int    `json:"max_records,omitempty" jsonschema:"description=Maximum records returned"`
	MaxPerSource   int    `json:"max_per_source,omitempty" jsonschema:"description=Maximum records per source"`
	WithEnrichment bool   `json:"with_enrichment,omitempty" jsonschema:"description=Join fulltext/abstract state and content"`
}

func (svc *Service) registerWindow(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedkeeper_window",
		Description: "List ingested records whose publication (or last seen) time falls in a time window, most recent first",
		InputSchema: kit.InputSchema[windowRequest](),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*windowRequest)
		start, end, err := resolveWindow(p.Period, p.Start, p.End, svc.now())
		if err != nil {
			return nil, err
		}
		return svc.Window(ctx, WindowOptions{
			Start:          start,
			End:            end,
			MaxRecords:     p.MaxRecords,
			MaxPerSource:   p.MaxPerSource,
			WithEnrichment: p.WithEnrichment,
		})
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[windowRequest]())
}

type listSourcesRequest struct {
	Kind string `json:"kind,omitempty" jsonschema:"enum=feed,enum=queue,description=Restrict to one source kind"`
}

func (svc *Service) registerListSources(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedkeeper_list_sources",
		Description: "List registered feeds and queue sources with their conditional-fetch state",
		InputSchema: kit.InputSchema[listSourcesRequest](),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.ListSources(ctx, r.(*listSourcesRequest).Kind)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[listSourcesRequest]())
}

type enrichmentQueueRequest struct {
	Status string `json:"status,omitempty" jsonschema:"enum=new,enum=ready,enum=failed,description=Restrict to one enrichment status"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum rows (default 50)"`
}

func (svc *Service) registerEnrichmentQueue(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedkeeper_enrichment_queue",
		Description: "List fulltext/abstract enrichment rows with retry count, next retry time and last error",
		InputSchema: kit.InputSchema[enrichmentQueueRequest](),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*enrichmentQueueRequest)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return svc.ListEnrichment(ctx, p.Status, p.Limit)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[enrichmentQueueRequest]())
}

func (svc *Service) registerStats(srv *mcp.Server) {
	type req struct{}
	tool := &mcp.Tool{
		Name:        "feedkeeper_stats",
		Description: "Count sources, records, identity keys and enrichment rows by status",
		InputSchema: kit.InputSchema[req](),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.Stats(ctx)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

// resolveWindow turns explicit bounds or a period into [start, end). Bare
// dates are UTC midnights; an end date is exclusive.
func resolveWindow(period, start, end string, now time.Time) (time.Time, time.Time, error) {
	if start == "" && end == "" {
		if period == "" {
			period = PeriodDaily
		}
		return PeriodRange(period, now)
	}
	s, err := ParseBoundary(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := ParseBoundary(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s, e, nil
}

// ParseBoundary parses a window bound given as YYYY-MM-DD or RFC 3339.
func ParseBoundary(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q (want YYYY-MM-DD or RFC 3339)", ErrInvalidInput, s)
	}
	return t.UTC(), nil
}

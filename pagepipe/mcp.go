package pagepipe

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagesmith/kit"
	"github.com/hazyhaar/pagesmith/pagerange"
	"github.com/hazyhaar/pagesmith/sizeplan"
)

// RegisterMCP registers pagesmith tools on an MCP server. Documents travel
// as base64 strings.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerParseTool(srv)
	p.registerPlanTool(srv)
	p.registerInspectTool(srv)
	p.registerMergeTool(srv)
	p.registerSplitRangesTool(srv)
	p.registerSplitSizeTool(srv)
}

// wrap applies the tool middleware chain: panic recovery, then call
// logging at debug level.
func (p *Pipeline) wrap(tool string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Recover(p.logger), p.logCalls(tool))(e)
}

func (p *Pipeline) logCalls(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			p.logger.Debug("pagepipe: mcp call", "tool", tool, "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return resp, err
		}
	}
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

var (
	nameProp = map[string]any{"type": "string", "description": "File name, e.g. report.pdf"}
	dataProp = map[string]any{"type": "string", "description": "Document bytes, base64"}
)

// --- pages_parse ---

type parseReq struct {
	Expr      string `json:"expr"`
	PageCount int    `json:"page_count"`
	Mode      string `json:"mode"` // "select" (default) or "split"
}

// ParsePreview is the result of pages_parse. Pages are 1-based.
type ParsePreview struct {
	Pages   []int                    `json:"pages,omitempty"`
	Groups  [][]int                  `json:"groups,omitempty"`
	Dropped []pagerange.DroppedToken `json:"dropped,omitempty"`
}

func oneBased(idx []int) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = v + 1
	}
	return out
}

// Preview parses expr without a document, for forms that echo the selection.
// pageCount comes from the caller and must lie in [0, MaxPreviewPages].
func Preview(expr string, pageCount int, split bool) (ParsePreview, error) {
	if pageCount < 0 || pageCount > MaxPreviewPages {
		return ParsePreview{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidPageCount, pageCount, MaxPreviewPages)
	}
	if split {
		groups, diag := pagerange.ParseGroupsDiagnose(expr, pageCount)
		out := ParsePreview{Groups: [][]int{}, Dropped: diag.Dropped}
		for _, g := range groups {
			out.Groups = append(out.Groups, oneBased(g))
		}
		return out, nil
	}
	pages, diag := pagerange.ParseDiagnose(expr, pageCount)
	return ParsePreview{Pages: oneBased(pages), Dropped: diag.Dropped}, nil
}

func (p *Pipeline) registerParseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pages_parse",
		Description: "Parse a page range expression (\"1, 3-5\") against a page count. mode=split keeps one group per token.",
		InputSchema: inputSchema(map[string]any{
			"expr":       map[string]any{"type": "string", "description": "Range expression; empty or 'all' selects every page"},
			"page_count": map[string]any{"type": "integer", "minimum": 0, "maximum": MaxPreviewPages, "description": "Pages in the document"},
			"mode":       map[string]any{"type": "string", "enum": []string{"select", "split"}},
		}, []string{"page_count"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*parseReq)
		return Preview(r.Expr, r.PageCount, r.Mode == "split")
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[parseReq])
}

// --- pages_plan ---

type planReq struct {
	PageCount  int     `json:"page_count"`
	TotalBytes float64 `json:"total_bytes"`
	TargetMB   float64 `json:"target_mb"`
}

func (p *Pipeline) registerPlanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pages_plan",
		Description: "Estimate pages per file and file count for a size-limited split.",
		InputSchema: inputSchema(map[string]any{
			"page_count":  map[string]any{"type": "integer"},
			"total_bytes": map[string]any{"type": "number"},
			"target_mb":   map[string]any{"type": "number", "description": "Max MB per output file (default from config)"},
		}, []string{"page_count", "total_bytes"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*planReq)
		target := r.TargetMB
		if target == 0 {
			target = p.cfg.DefaultTargetMB
		}
		plan, err := sizeplan.Compute(r.PageCount, r.TotalBytes, sizeplan.MB(target))
		if err != nil {
			return nil, err
		}
		return map[string]any{"plan": plan, "summary": plan.Summary(), "target_mb": target}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[planReq])
}

// --- pdf_inspect ---

func (p *Pipeline) registerInspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdf_inspect",
		Description: "Report the page count and size of a PDF.",
		InputSchema: inputSchema(map[string]any{"name": nameProp, "data": dataProp}, []string{"data"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return p.Inspect(ctx, *req.(*Input))
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[Input])
}

// --- pdf_merge ---

type mergeReq struct {
	Files []MergeInput `json:"files"`
}

type mergeResp struct {
	*MergeResult
	Name string `json:"name"`
	Data []byte `json:"data"`
}

func (p *Pipeline) registerMergeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdf_merge",
		Description: "Merge PDFs in order, taking the pages selected by each file's range expression.",
		InputSchema: inputSchema(map[string]any{
			"files": map[string]any{
				"type": "array",
				"items": inputSchema(map[string]any{
					"name":   nameProp,
					"data":   dataProp,
					"ranges": map[string]any{"type": "string", "description": "Pages to take, e.g. 1, 3-5 (empty = all)"},
				}, []string{"data"}),
			},
		}, []string{"files"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		res, err := p.Merge(ctx, req.(*mergeReq).Files)
		if err != nil {
			return nil, err
		}
		return mergeResp{MergeResult: res, Name: res.Artifact.FileName(), Data: res.Artifact.Data}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[mergeReq])
}

// --- pdf_split_ranges / pdf_split_size ---

type splitRangesReq struct {
	Input
	Ranges string `json:"ranges"`
}

type splitSizeReq struct {
	Input
	TargetMB float64 `json:"target_mb"`
}

type splitResp struct {
	*SplitResult
	Archive []byte `json:"archive"`
}

func (p *Pipeline) registerSplitRangesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdf_split_ranges",
		Description: "Split a PDF into one file per comma-separated range (\"1-5, 6-10, 11\"); returns a zip archive.",
		InputSchema: inputSchema(map[string]any{
			"name":   nameProp,
			"data":   dataProp,
			"ranges": map[string]any{"type": "string"},
		}, []string{"data", "ranges"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*splitRangesReq)
		res, err := p.SplitRanges(ctx, r.Input, r.Ranges)
		if err != nil {
			return nil, err
		}
		return splitResp{SplitResult: res, Archive: res.Archive}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[splitRangesReq])
}

func (p *Pipeline) registerSplitSizeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pdf_split_size",
		Description: "Split a PDF into contiguous files estimated to stay under target_mb each; returns a zip archive.",
		InputSchema: inputSchema(map[string]any{
			"name":      nameProp,
			"data":      dataProp,
			"target_mb": map[string]any{"type": "number", "description": "Max MB per output file (default from config)"},
		}, []string{"data"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*splitSizeReq)
		target := r.TargetMB
		if target == 0 {
			target = p.cfg.DefaultTargetMB
		}
		res, err := p.SplitSize(ctx, r.Input, target)
		if err != nil {
			return nil, err
		}
		return splitResp{SplitResult: res, Archive: res.Archive}, nil
	}
	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, endpoint), kit.DecodeJSON[splitSizeReq])
}

package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagesmith/idgen"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder extracts the typed request of a tool call.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// DecodeJSON is the MCPDecoder for tools whose arguments unmarshal into T.
// Missing arguments decode to the zero T.
func DecodeJSON[T any](req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
	var r T
	if args := req.Params.Arguments; len(args) > 0 {
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
	}
	return &MCPDecodeResult{Request: &r}, nil
}

var newCallID = idgen.Prefixed("mcp_", idgen.NanoID(12))

// RegisterMCPTool exposes endpoint as an MCP tool. Each call runs with
// transport "mcp" and its own request ID. Decode, endpoint and encoding
// failures come back as tool errors so the session stays usable; the
// endpoint response is one JSON text content.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return toolError("invalid arguments: %v", err), nil
		}
		ctx = WithRequestID(WithTransport(ctx, "mcp"), newCallID())
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return toolError("%s: %v", tool.Name, err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError("marshal %s result: %v", tool.Name, err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(fmt.Errorf(format, args...))
	return &res
}

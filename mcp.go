package pgops

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pgops-mcp/pgops/internal/policy"
)

// RegisterMCPTools registers the whole tool catalogue on the given MCP
// server. Tool schemas are generated from the catalogue's argument specs, so
// the MCP surface and the dispatcher's own validation can never drift apart.
func RegisterMCPTools(mcpServer *server.MCPServer, d *Dispatcher) {
	for _, def := range d.Registry().List() {
		mcpServer.AddTool(toolSchema(def), d.loggedToolHandler(def.Name))
	}
}

func toolSchema(def *ToolDefinition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	if def.Class == policy.ClassRead {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}
	for _, spec := range def.Args {
		opts = append(opts, argOption(spec))
	}
	return mcp.NewTool(def.Name, opts...)
}

func argOption(spec ArgSpec) mcp.ToolOption {
	switch spec.Type {
	case ArgInt, ArgNumber:
		if spec.Required {
			return mcp.WithNumber(spec.Name, mcp.Required(), mcp.Description(spec.Description))
		}
		return mcp.WithNumber(spec.Name, mcp.Description(spec.Description))
	case ArgBool:
		if spec.Required {
			return mcp.WithBoolean(spec.Name, mcp.Required(), mcp.Description(spec.Description))
		}
		return mcp.WithBoolean(spec.Name, mcp.Description(spec.Description))
	case ArgArray:
		if spec.Required {
			return mcp.WithArray(spec.Name, mcp.Required(), mcp.Description(spec.Description))
		}
		return mcp.WithArray(spec.Name, mcp.Description(spec.Description))
	case ArgObject:
		if spec.Required {
			return mcp.WithObject(spec.Name, mcp.Required(), mcp.Description(spec.Description))
		}
		return mcp.WithObject(spec.Name, mcp.Description(spec.Description))
	default:
		if spec.Required {
			return mcp.WithString(spec.Name, mcp.Required(), mcp.Description(spec.Description))
		}
		return mcp.WithString(spec.Name, mcp.Description(spec.Description))
	}
}

// loggedToolHandler bridges an MCP call into Dispatch and logs request and
// response sizes. Tool failures become MCP error results, not protocol
// errors, so clients see the structured message.
func (d *Dispatcher) loggedToolHandler(tool string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Dispatch(ctx, tool, req.GetArguments())
		if err != nil {
			terr := asToolError(err, KindStatementFailed)
			payload, merr := json.Marshal(terr)
			if merr != nil {
				return mcp.NewToolResultError(terr.Error()), nil
			}
			return mcp.NewToolResultError(string(payload)), nil
		}

		payload, merr := json.Marshal(result)
		if merr != nil {
			return mcp.NewToolResultError("failed to marshal tool result"), nil
		}
		d.logger.Info().
			Str("tool", tool).
			Int("request_bytes", requestLength(req)).
			Int("response_bytes", len(payload)).
			Msg("tool call")
		return mcp.NewToolResultText(string(payload)), nil
	}
}

// requestLength returns the JSON-encoded byte length of the request
// arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

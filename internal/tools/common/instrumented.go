package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/accountkeeper/internal/instrumentation"
	"github.com/teemow/accountkeeper/internal/server"
)

// ToolHandler is the handler signature accepted by the MCP server.
type ToolHandler = mcpserver.ToolHandlerFunc

// InstrumentedToolHandler wraps a tool handler with tracing, metrics,
// and audit logging. The operation names the lifecycle operation behind
// the tool (register, validate, authorize, complete_auth, revoke,
// list).
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("account_validate", "validate", sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithOperation(operation).
			WithSpanContext(ctx)

		args := request.GetArguments()
		account := OptionalString(args, "account")
		if account != "" {
			invocation.WithAccount(account)
		}
		if scopes, err := ScopesFromArgs(args); err == nil && len(scopes) > 0 {
			invocation.WithScopeCount(len(scopes))
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		invocation.Complete(status == instrumentation.StatusSuccess, err)

		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, account, duration)
		sc.Audit().LogToolInvocation(invocation)

		return result, err
	}
}

package account_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/accountkeeper/internal/server"
	"github.com/teemow/accountkeeper/internal/tools/common"
)

// RegisterAccountTools registers all credential lifecycle tools with
// the MCP server.
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	registerTool := mcp.NewTool("account_register",
		mcp.WithDescription("Register a Google account with the credential keeper. Registration is idempotent; registering an existing account returns its current record unchanged."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account's email address, e.g. alice@example.com"),
		),
		mcp.WithString("category",
			mcp.Description("Free-form grouping label, e.g. 'work' or 'personal'"),
		),
		mcp.WithString("description",
			mcp.Description("Human-readable note about the account"),
		),
	)

	s.AddTool(registerTool, common.InstrumentedToolHandler("account_register", "register", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRegister(ctx, request, sc)
		}))

	listTool := mcp.NewTool("account_list",
		mcp.WithDescription("List all registered accounts with their credential status (granted scopes, expiry, refresh token presence). Token values are never included."),
	)

	s.AddTool(listTool, common.InstrumentedToolHandler("account_list", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleList(ctx, request, sc)
		}))

	validateTool := mcp.NewTool("account_validate",
		mcp.WithDescription("Check whether an account holds a usable credential covering the required scopes, refreshing an expired access token automatically when possible."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account's email address"),
		),
		mcp.WithString("scopes",
			mcp.Description("Required OAuth scopes, space or comma separated. Aliases like 'gmail.readonly' or 'calendar' are expanded to full scope URLs. Empty checks for any usable credential."),
		),
	)

	s.AddTool(validateTool, common.InstrumentedToolHandler("account_validate", "validate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleValidate(ctx, request, sc)
		}))

	authorizeTool := mcp.NewTool("account_authorize",
		mcp.WithDescription("Produce a consent URL for the account. Requested scopes are merged with already-granted ones so a new grant never narrows access. Visit the URL, approve, then call account_complete_auth with the code."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account's email address"),
		),
		mcp.WithString("scopes",
			mcp.Description("OAuth scopes to request, space or comma separated. Aliases like 'gmail' or 'drive.readonly' are expanded."),
		),
	)

	s.AddTool(authorizeTool, common.InstrumentedToolHandler("account_authorize", "authorize", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthorize(ctx, request, sc)
		}))

	completeAuthTool := mcp.NewTool("account_complete_auth",
		mcp.WithDescription("Exchange the authorization code from the consent page for tokens and store the credential. Codes are single-use; a failed exchange requires a fresh consent URL."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account's email address"),
		),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The authorization code shown after approving consent"),
		),
	)

	s.AddTool(completeAuthTool, common.InstrumentedToolHandler("account_complete_auth", "complete_auth", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCompleteAuth(ctx, request, sc)
		}))

	revokeTool := mcp.NewTool("account_revoke",
		mcp.WithDescription("Remove an account and its stored credential. Idempotent; revoking an unknown account succeeds."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account's email address"),
		),
	)

	s.AddTool(revokeTool, common.InstrumentedToolHandler("account_revoke", "revoke", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRevoke(ctx, request, sc)
		}))

	return nil
}

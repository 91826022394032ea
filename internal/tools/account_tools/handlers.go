package account_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/accountkeeper/internal/keeper"
	"github.com/teemow/accountkeeper/internal/server"
	"github.com/teemow/accountkeeper/internal/tools/common"
)

// toolError renders a keeper failure as a tool result, surfacing the
// resolution hint so agents know the next action to take.
func toolError(err error) *mcp.CallToolResult {
	var ke *keeper.Error
	if errors.As(err, &ke) && ke.Resolution != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s. Next step: %s.", ke.Message, ke.Resolution))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleRegister(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.RequireAccount(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	acc, err := sc.Manager().Register(ctx, account,
		common.OptionalString(args, "category"),
		common.OptionalString(args, "description"))
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(acc)
}

func handleList(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts, err := sc.Manager().List(ctx)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(accounts)
}

func handleValidate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.RequireAccount(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scopes, err := common.ScopesFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := sc.Manager().Validate(ctx, account, scopes)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(result)
}

func handleAuthorize(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.RequireAccount(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scopes, err := common.ScopesFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	consentURL, err := sc.Manager().Authorize(ctx, account, scopes)
	if err != nil {
		return toolError(err), nil
	}

	result := fmt.Sprintf(`To authorize account %q:

1. Visit this URL in your browser:
   %s

2. Sign in as %s and approve the requested access
3. Copy the authorization code

4. Call account_complete_auth with the code to store the credential`, account, consentURL, account)

	return mcp.NewToolResultText(result), nil
}

func handleCompleteAuth(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.RequireAccount(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	code, ok := args["code"].(string)
	if !ok || code == "" {
		return mcp.NewToolResultError("code parameter is required"), nil
	}

	summary, err := sc.Manager().CompleteAuthorization(ctx, account, code)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(summary)
}

func handleRevoke(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account, err := common.RequireAccount(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Manager().Revoke(ctx, account); err != nil {
		return toolError(err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Account %q and its credential have been removed.", account)), nil
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/domain/explanation"
)

const toolExplainRepository = "explain_repository"

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(s.explainRepositoryTool())
}

func (s *Server) explainRepositoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(toolExplainRepository,
		mcplib.WithDescription("Explain a public GitHub repository: purpose, architecture with a Mermaid diagram, and directory structure, as Markdown."),
		mcplib.WithString("repository",
			mcplib.Required(),
			mcplib.Description("GitHub URL or owner/repo, e.g. https://github.com/octo/hello or octo/hello"),
		),
		mcplib.WithString("ref",
			mcplib.Description("Branch, tag, or commit. Defaults to the repository's default branch."),
		),
		mcplib.WithString("instructions",
			mcplib.Description("Optional question to focus the explanation on."),
		),
		mcplib.WithString("format",
			mcplib.Description("markdown (default) returns the explanation text; json returns the full result object."),
			mcplib.Enum("markdown", "json"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(true),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleExplainRepository,
	}
}

func (s *Server) handleExplainRepository(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	repository := req.GetString("repository", "")
	if repository == "" {
		return mcplib.NewToolResultError("repository is required"), nil
	}
	q := explanation.Query{
		Repository:   repository,
		Ref:          req.GetString("ref", ""),
		Instructions: req.GetString("instructions", ""),
	}

	var token mcplib.ProgressToken
	if req.Params.Meta != nil {
		token = req.Params.Meta.ProgressToken
	}

	for ev := range s.explainer.Stream(ctx, q) {
		switch ev.Type {
		case explanation.EventStatus:
			s.notifyProgress(ctx, token, ev.Stage)
		case explanation.EventResult:
			if req.GetString("format", "markdown") == "json" {
				return toolResultJSON(ev.Result)
			}
			return mcplib.NewToolResultText(ev.Result.Explanation), nil
		case explanation.EventError:
			detail := ev.Detail
			if detail == "" {
				detail = domain.UserMessage(ev.Err)
			}
			return mcplib.NewToolResultError(detail), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mcplib.NewToolResultError(domain.UserMessage(domain.ErrInternal)), nil
}

// notifyProgress reports a stage to clients that asked for progress.
func (s *Server) notifyProgress(ctx context.Context, token mcplib.ProgressToken, stage explanation.Stage) {
	if token == nil {
		return
	}
	params := map[string]any{
		"progressToken": token,
		"progress":      stage.Order() + 1,
		"total":         len(explanation.Stages) + 1,
		"message":       string(stage),
	}
	if err := s.mcpServer.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
		slog.DebugContext(ctx, "mcp progress notification failed", "stage", stage, "error", err)
	}
}

// toolResultJSON marshals v into a text result.
func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

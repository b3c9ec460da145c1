// Package mcpserver registers MCP tools that expose the sync session.
// It adapts the session package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/scout-sync/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all scout tools to the given MCP server.
func RegisterTools(server *mcp.Server, sess *session.Session, logger *slog.Logger) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "scout_status",
		Description: "Report the sync status, watched file, destination id, encoding mode, and the live data and live app URLs.",
	}, statusHandler(sess))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scout_set_file",
		Description: "Watch a scouting file and upload it on every change. The file is uploaded once right away. An empty path stops watching.",
	}, setFileHandler(sess, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scout_set_destination",
		Description: "Set the pantry id the watched file is uploaded to. The file is re-uploaded to the new basket.",
	}, setDestinationHandler(sess, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scout_set_encoding",
		Description: "Choose base64 (true) or raw text (false) for the uploaded data. Applies from the next upload.",
	}, setEncodingHandler(sess, logger))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// SetFileInput holds parameters for scout_set_file.
type SetFileInput struct {
	Path string `json:"path" jsonschema:"absolute path of the file to watch, empty to stop"`
}

// SetDestinationInput holds parameters for scout_set_destination.
type SetDestinationInput struct {
	PantryID string `json:"pantry_id" jsonschema:"pantry id, empty to pause uploads"`
}

// SetEncodingInput holds parameters for scout_set_encoding.
type SetEncodingInput struct {
	B64 bool `json:"b64" jsonschema:"true for base64, false for raw text"`
}

// --- Handlers ---

func statusHandler(sess *session.Session) mcp.ToolHandlerFor[StatusInput, *session.State] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *session.State, error) {
		st := sess.State()
		return textResult(st), &st, nil
	}
}

func setFileHandler(sess *session.Session, logger *slog.Logger) mcp.ToolHandlerFor[SetFileInput, *session.State] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SetFileInput) (*mcp.CallToolResult, *session.State, error) {
		if err := sess.SetFile(input.Path); err != nil {
			return nil, nil, err
		}

		logger.Info("mcp: scout file set", slog.String("path", input.Path))

		st := sess.State()
		return textResult(st), &st, nil
	}
}

func setDestinationHandler(sess *session.Session, logger *slog.Logger) mcp.ToolHandlerFor[SetDestinationInput, *session.State] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SetDestinationInput) (*mcp.CallToolResult, *session.State, error) {
		if err := sess.SetDestination(input.PantryID); err != nil {
			return nil, nil, err
		}

		logger.Info("mcp: destination set", slog.Bool("configured", input.PantryID != ""))

		st := sess.State()
		return textResult(st), &st, nil
	}
}

func setEncodingHandler(sess *session.Session, logger *slog.Logger) mcp.ToolHandlerFor[SetEncodingInput, *session.State] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SetEncodingInput) (*mcp.CallToolResult, *session.State, error) {
		if err := sess.SetEncoding(input.B64); err != nil {
			return nil, nil, err
		}

		logger.Info("mcp: encoding set", slog.Bool("b64", input.B64))

		st := sess.State()
		return textResult(st), &st, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

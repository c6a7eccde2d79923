// Package tools exposes a running bridge to MCP clients.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/runbridge/internal/client"
	"github.com/standardbeagle/runbridge/internal/fix"
	"github.com/standardbeagle/runbridge/internal/session"
)

// BridgeInput represents input for the bridge tool.
type BridgeInput struct {
	Action       string `json:"action" jsonschema:"Action: status, qr, run, stop, fix, apply, token"`
	BuildMessage string `json:"build_message,omitempty" jsonschema:"Build log to fix (fix action; defaults to the last captured build log)"`
	Token        string `json:"token,omitempty" jsonschema:"Push device token (required for token)"`
}

// BridgeOutput represents output from the bridge tool.
type BridgeOutput struct {
	Success      bool              `json:"success,omitempty"`
	Message      string            `json:"message,omitempty"`
	Running      bool              `json:"running,omitempty"`
	PublicURL    string            `json:"public_url,omitempty"`
	ConnectionID string            `json:"connection_id,omitempty"`
	QRCode       string            `json:"qr_code,omitempty"`
	Status       string            `json:"status,omitempty"`
	Logs         string            `json:"logs,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorCode    *fix.ErrorCode    `json:"error_code,omitempty"`
	FilePath     string            `json:"file_path,omitempty"`
	Files        []session.FileFix `json:"files,omitempty"`
	Updated      []string          `json:"updated,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// BridgeTools proxies tool calls to a bridge through its control API.
type BridgeTools struct {
	client *client.Client
}

// NewBridgeTools creates the tool set for c.
func NewBridgeTools(c *client.Client) *BridgeTools {
	return &BridgeTools{client: c}
}

// RegisterBridgeTool registers the bridge MCP tool with the server.
func RegisterBridgeTool(server *mcp.Server, bt *BridgeTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "bridge",
		Description: `Drive the project's run configuration through a running runbridge.

Actions:
  status: Build status, recent logs and, after a failure, the error location
  qr: Public URL, connection id and QR code (base64 PNG) for pairing
  run: Start the run configuration (returns at once; poll status)
  stop: Stop the current run
  fix: Ask the LLM for file fixes for the last failed build
  apply: Write the last proposed fixes into the project
  token: Register a push notification device token

Examples:
  bridge {action: "run"}
  bridge {action: "status"}
  bridge {action: "fix"}
  bridge {action: "apply"}
  bridge {action: "token", token: "device-token"}

Requirements:
  - 'runbridge serve' must be running (RUNBRIDGE_URL overrides the address)`,
	}, bt.makeBridgeHandler())
}

func (bt *BridgeTools) makeBridgeHandler() func(context.Context, *mcp.CallToolRequest, BridgeInput) (*mcp.CallToolResult, BridgeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input BridgeInput) (*mcp.CallToolResult, BridgeOutput, error) {
		switch strings.ToLower(strings.TrimSpace(input.Action)) {
		case "status":
			return bt.handleStatus(ctx)
		case "qr":
			return bt.handleQR(ctx)
		case "run":
			return bt.handleResult(ctx, "run", bt.client.Run)
		case "stop":
			return bt.handleResult(ctx, "stop", bt.client.Stop)
		case "fix":
			return bt.handleFix(ctx, input)
		case "apply":
			return bt.handleApply(ctx)
		case "token":
			return bt.handleToken(ctx, input)
		default:
			return errorResult(fmt.Sprintf("unknown action: %s (use: status, qr, run, stop, fix, apply, token)", input.Action)), BridgeOutput{}, nil
		}
	}
}

func (bt *BridgeTools) handleStatus(ctx context.Context) (*mcp.CallToolResult, BridgeOutput, error) {
	probe, err := bt.client.Status(ctx)
	if err != nil {
		return formatBridgeError(err, "status"), BridgeOutput{}, nil
	}
	st, err := bt.client.BuildStatus(ctx)
	if err != nil {
		return formatBridgeError(err, "status"), BridgeOutput{}, nil
	}
	return nil, BridgeOutput{
		Running:      probe.Running,
		PublicURL:    probe.PublicURL,
		Status:       st.Status.String(),
		Logs:         st.Logs,
		ErrorMessage: st.ErrorMessage,
		ErrorCode:    st.ErrorCode,
		FilePath:     st.AbsoluteFilePath,
	}, nil
}

func (bt *BridgeTools) handleQR(ctx context.Context) (*mcp.CallToolResult, BridgeOutput, error) {
	p, err := bt.client.Pairing(ctx)
	if err != nil {
		return formatBridgeError(err, "qr"), BridgeOutput{}, nil
	}
	return nil, BridgeOutput{
		Running:      true,
		PublicURL:    p.PublicURL,
		ConnectionID: p.ConnectionID,
		QRCode:       p.QRCode,
	}, nil
}

func (bt *BridgeTools) handleResult(ctx context.Context, name string, call func(context.Context) (client.Result, error)) (*mcp.CallToolResult, BridgeOutput, error) {
	res, err := call(ctx)
	if err != nil {
		return formatBridgeError(err, name), BridgeOutput{}, nil
	}
	return nil, BridgeOutput{Success: res.Success, Message: res.Message, Error: res.Error}, nil
}

func (bt *BridgeTools) handleFix(ctx context.Context, input BridgeInput) (*mcp.CallToolResult, BridgeOutput, error) {
	res, err := bt.client.Fix(ctx, input.BuildMessage)
	if err != nil {
		return formatBridgeError(err, "fix"), BridgeOutput{}, nil
	}
	out := BridgeOutput{Success: res.Success, Files: res.Files, Error: res.Error}
	if res.Success {
		out.Message = fmt.Sprintf("%d file fix(es) proposed; call apply to write them", len(res.Files))
	}
	return nil, out, nil
}

func (bt *BridgeTools) handleApply(ctx context.Context) (*mcp.CallToolResult, BridgeOutput, error) {
	res, err := bt.client.Apply(ctx)
	if err != nil {
		if len(res.Updated) > 0 {
			msg := fmt.Sprintf("apply stopped after %d file(s): %s\nupdated:\n  %s",
				len(res.Updated), res.Error, strings.Join(res.Updated, "\n  "))
			return errorResult(msg), BridgeOutput{Updated: res.Updated, Error: res.Error}, nil
		}
		return formatBridgeError(err, "apply"), BridgeOutput{}, nil
	}
	return nil, BridgeOutput{Success: res.Success, Updated: res.Updated, Error: res.Error}, nil
}

func (bt *BridgeTools) handleToken(ctx context.Context, input BridgeInput) (*mcp.CallToolResult, BridgeOutput, error) {
	if strings.TrimSpace(input.Token) == "" {
		return errorResult("token required"), BridgeOutput{}, nil
	}
	return bt.handleResult(ctx, "token", func(ctx context.Context) (client.Result, error) {
		return bt.client.UpdateToken(ctx, input.Token)
	})
}

// formatBridgeError turns client errors into messages an agent can act on.
func formatBridgeError(err error, action string) *mcp.CallToolResult {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrNotPaired):
		return errorResult(fmt.Sprintf("%s failed: the bridge has no public URL yet; check the tunnel and retry", action))
	case errors.As(err, &apiErr):
		return errorResult(fmt.Sprintf("%s failed: %s", action, apiErr.Message))
	default:
		return errorResult(fmt.Sprintf("%s failed: %v (is 'runbridge serve' running?)", action, err))
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

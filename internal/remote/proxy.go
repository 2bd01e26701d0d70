// Package remote connects to a remote MCP tool server and exposes its
// catalog as tools.Tool values.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/logger"
	"github.com/hession/pwtpilot/internal/tools"
)

// ErrConnect marks a failure to reach the remote tool server or fetch its catalog.
// It is fatal for a run.
var ErrConnect = errors.New("remote tool server unavailable")

// clientName and clientVersion identify this process in the MCP handshake
const (
	clientName    = "pwtpilot"
	clientVersion = "0.1.0"
)

// Proxy holds one MCP connection and the tool catalog fetched from it
type Proxy struct {
	endpoint string
	client   *client.Client
	tools    []tools.Tool

	closeOnce sync.Once
	closeErr  error
}

// Connect dials the configured remote tool server, performs the MCP
// handshake and lists its tools once. Any failure is wrapped in ErrConnect.
func Connect(ctx context.Context, cfg config.RemoteConfig) (*Proxy, error) {
	cli, endpoint, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, endpoint, err)
	}

	// SSE and streamable HTTP bind their response stream to the context given
	// to Start, so it must outlive Connect; Close ends it. stdio clients start
	// their subprocess on creation.
	if cfg.TransportName() != config.TransportStdio {
		if err := cli.Start(context.WithoutCancel(ctx)); err != nil {
			cli.Close()
			return nil, fmt.Errorf("%w: %s: failed to start transport: %v", ErrConnect, endpoint, err)
		}
	}

	// Only the handshake and the catalog fetch are bounded
	if cfg.ConnectTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeoutSeconds)*time.Second)
		defer cancel()
	}

	return attach(ctx, cli, endpoint, cfg.ToolFilter)
}

// newClient creates a transport-specific MCP client
func newClient(cfg config.RemoteConfig) (*client.Client, string, error) {
	switch cfg.TransportName() {
	case config.TransportSSE:
		cli, err := client.NewSSEMCPClient(cfg.URL)
		return cli, cfg.URL, err
	case config.TransportStreamableHTTP:
		cli, err := client.NewStreamableHttpClient(cfg.URL)
		return cli, cfg.URL, err
	case config.TransportStdio:
		endpoint := strings.TrimSpace(cfg.Command + " " + strings.Join(cfg.Args, " "))
		cli, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
		return cli, endpoint, err
	default:
		return nil, cfg.Transport, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}

// attach runs the handshake on a started client and fetches the catalog
func attach(ctx context.Context, cli *client.Client, endpoint string, filter []string) (*Proxy, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	initResult, err := cli.Initialize(ctx, initReq)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %s: failed to initialize: %v", ErrConnect, endpoint, err)
	}
	logger.Info("[remote] connected to %s (%s %s)", endpoint, initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	p := &Proxy{endpoint: endpoint, client: cli}

	listed, err := p.listTools(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %s: failed to list tools: %v", ErrConnect, endpoint, err)
	}

	allowed := make(map[string]bool, len(filter))
	for _, name := range filter {
		allowed[name] = true
	}

	for _, t := range listed {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		p.tools = append(p.tools, newRemoteTool(p, t))
	}

	logger.Info("[remote] %d tools available from %s", len(p.tools), endpoint)
	return p, nil
}

// listTools pages through tools/list until the server reports no further cursor
func (p *Proxy) listTools(ctx context.Context) ([]mcp.Tool, error) {
	var all []mcp.Tool
	req := mcp.ListToolsRequest{}
	for {
		res, err := p.client.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			return all, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

// Tools returns the remote catalog in server order
func (p *Proxy) Tools() []tools.Tool {
	result := make([]tools.Tool, len(p.tools))
	copy(result, p.tools)
	return result
}

// Endpoint returns the address the proxy is connected to
func (p *Proxy) Endpoint() string {
	return p.endpoint
}

// Close closes the MCP connection
func (p *Proxy) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.client.Close()
		logger.Info("[remote] connection to %s closed", p.endpoint)
	})
	return p.closeErr
}

// call forwards one tool invocation without inspecting its arguments
func (p *Proxy) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return p.client.CallTool(ctx, req)
}

// remoteTool adapts one remote tool definition to tools.Tool
type remoteTool struct {
	proxy       *Proxy
	name        string
	description string
	schema      map[string]any
}

func newRemoteTool(p *Proxy, t mcp.Tool) *remoteTool {
	return &remoteTool{
		proxy:       p,
		name:        t.Name,
		description: t.Description,
		schema:      inputSchema(t),
	}
}

func (t *remoteTool) Name() string           { return t.name }
func (t *remoteTool) Description() string    { return t.description }
func (t *remoteTool) Schema() map[string]any { return t.schema }

// Execute calls the tool on the server. Only transport failures are errors;
// tool-level failures are part of the returned content.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	res, err := t.proxy.call(ctx, t.name, args)
	if err != nil {
		return "", fmt.Errorf("remote tool %s: %w", t.name, err)
	}
	return renderContent(res.Content), nil
}

// inputSchema returns the tool's input schema as a generic map
func inputSchema(t mcp.Tool) map[string]any {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		encoded, err := json.Marshal(t.InputSchema)
		if err != nil {
			return map[string]any{"type": "object"}
		}
		raw = encoded
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return map[string]any{"type": "object"}
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// renderContent flattens MCP content blocks into text for the model
func renderContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes base64]", v.MIMEType, len(v.Data)))
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes base64]", v.MIMEType, len(v.Data)))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%v", v))
				continue
			}
			parts = append(parts, string(encoded))
		}
	}
	return strings.Join(parts, "\n")
}

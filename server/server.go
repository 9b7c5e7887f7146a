package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/version"
)

const (
	DefaultServerInitDelay = 30 * time.Second
	ProcessStartupDelay    = 300 * time.Millisecond
	MCPClientName          = "tool-bench"
	URLSchemeHTTP          = "http://"
	URLSchemeHTTPS         = "https://"
)

// MCPServer is a live connection to one tool server.
type MCPServer struct {
	Name    string
	Type    model.ServerType
	Command string
	Env     []string
	URL     string
	Headers []string
	Client  mcpclient.MCPClient

	serverDelay  string
	processDelay string
}

func NewMCPServer(ctx context.Context, cfg model.Server) (*MCPServer, error) {
	logger.Logger.Info("Connecting to MCP server",
		"server_name", cfg.Name,
		"server_type", cfg.Type,
	)

	s := &MCPServer{
		Name:         cfg.Name,
		Type:         cfg.Type,
		Command:      cfg.Command,
		Env:          cfg.Env,
		URL:          cfg.URL,
		Headers:      cfg.Headers,
		serverDelay:  cfg.ServerDelay,
		processDelay: cfg.ProcessDelay,
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration for %s: %w", cfg.Name, err)
	}

	cli, err := s.createMCPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for server %s: %w", cfg.Name, err)
	}
	s.Client = cli

	initDelay := DefaultServerInitDelay
	if s.serverDelay != "" {
		if initDelay, err = time.ParseDuration(s.serverDelay); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to parse server delay %q: %w", s.serverDelay, err)
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, initDelay)
	defer cancel()

	if err := s.initializeClient(initCtx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize MCP client for server %s: %w", cfg.Name, err)
	}

	logger.Logger.Info("MCP server ready", "server_name", cfg.Name)
	return s, nil
}

func (s *MCPServer) validate() error {
	if s.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	switch s.Type {
	case model.Stdio:
		if len(strings.Fields(s.Command)) == 0 {
			return fmt.Errorf("command is required for stdio server type")
		}
	case model.SSE, model.Http:
		if s.URL == "" {
			return fmt.Errorf("URL is required for %s server type", s.Type)
		}
		if strings.TrimSpace(s.URL) != s.URL {
			return fmt.Errorf("URL contains leading or trailing whitespace")
		}
		if !strings.HasPrefix(s.URL, URLSchemeHTTP) && !strings.HasPrefix(s.URL, URLSchemeHTTPS) {
			return fmt.Errorf("invalid URL format: must start with http:// or https://, got: %s", s.URL)
		}
		for i, header := range s.Headers {
			if !strings.Contains(header, ":") {
				return fmt.Errorf("invalid header format at index %d: must contain ':' separator", i)
			}
		}
	default:
		return fmt.Errorf("unsupported server type: %s (expected: stdio, sse, or http)", s.Type)
	}

	return nil
}

func (s *MCPServer) initializeClient(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    MCPClientName,
		Version: version.Version,
	}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	resp, err := s.Client.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("initialize response is nil")
	}

	logger.Logger.Debug("Server initialization successful",
		"server_name", s.Name,
		"server_info_name", resp.ServerInfo.Name,
		"server_info_version", resp.ServerInfo.Version,
		"protocol_version", resp.ProtocolVersion,
	)
	return nil
}

func (s *MCPServer) createMCPClient(ctx context.Context) (mcpclient.MCPClient, error) {
	switch s.Type {
	case model.Stdio:
		return s.createStdioClient()
	case model.SSE:
		return s.createSSEClient(ctx)
	case model.Http:
		return s.createStreamableHttpClient()
	}
	return nil, fmt.Errorf("unsupported transport type '%s' for server %s", s.Type, s.Name)
}

func (s *MCPServer) createStdioClient() (mcpclient.MCPClient, error) {
	parts := strings.Fields(s.Command)
	command, args := parts[0], parts[1:]

	logger.Logger.Debug("Starting stdio server process",
		"server_name", s.Name,
		"command", command,
		"args", args,
		"env_count", len(s.Env),
	)

	stdioClient, err := mcpclient.NewStdioMCPClient(command, s.Env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio client: %w", err)
	}

	if err := s.waitForProcess(); err != nil {
		_ = stdioClient.Close()
		return nil, err
	}
	return stdioClient, nil
}

func (s *MCPServer) createSSEClient(ctx context.Context) (mcpclient.MCPClient, error) {
	var options []transport.ClientOption
	if headers := parseHeaders(s.Name, s.Headers); len(headers) > 0 {
		options = append(options, transport.WithHeaders(headers))
	}

	sseClient, err := mcpclient.NewSSEMCPClient(s.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE client: %w", err)
	}

	if err := sseClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE client: %w", err)
	}
	return sseClient, nil
}

func (s *MCPServer) createStreamableHttpClient() (mcpclient.MCPClient, error) {
	var options []transport.StreamableHTTPCOption
	if headers := parseHeaders(s.Name, s.Headers); len(headers) > 0 {
		options = append(options, transport.WithHTTPHeaders(headers))
	}

	httpClient, err := mcpclient.NewStreamableHttpClient(s.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}

	if err := s.waitForProcess(); err != nil {
		return nil, err
	}
	return httpClient, nil
}

func (s *MCPServer) waitForProcess() error {
	delay := ProcessStartupDelay
	if s.processDelay != "" {
		d, err := time.ParseDuration(s.processDelay)
		if err != nil {
			return fmt.Errorf("failed to parse process delay %q: %w", s.processDelay, err)
		}
		delay = d
	}
	time.Sleep(delay)
	return nil
}

// parseHeaders turns "Key: Value" entries into a map, skipping malformed ones.
func parseHeaders(serverName string, raw []string) map[string]string {
	headers := make(map[string]string, len(raw))
	for i, header := range raw {
		key, value, ok := strings.Cut(header, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			logger.Logger.Warn("Invalid header format, skipping",
				"server_name", serverName,
				"header_index", i,
			)
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

// CallTool invokes a tool and always returns a response: transport failures
// become error responses so expected-error tests can match them.
func (s *MCPServer) CallTool(ctx context.Context, tool string, args map[string]any) model.ToolResponse {
	if s.Client == nil {
		return model.ErrorResponse(fmt.Sprintf("server %s is not connected", s.Name))
	}
	if args == nil {
		args = map[string]any{}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := s.Client.CallTool(ctx, req)
	if err != nil {
		logger.Logger.Warn("Tool call failed",
			"server_name", s.Name,
			"tool", tool,
			"error", err,
		)
		return model.ErrorResponse(fmt.Sprintf("failed to call tool '%s' on server '%s': %v", tool, s.Name, err))
	}

	return ConvertResult(result)
}

func (s *MCPServer) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("server %s is not connected", s.Name)
	}

	res, err := s.Client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on server %s: %w", s.Name, err)
	}
	if res == nil {
		return nil, nil
	}
	return ConvertTools(res.Tools), nil
}

func (s *MCPServer) cleanup() {
	if s.Client == nil {
		return
	}
	if err := s.Client.Close(); err != nil {
		logger.Logger.Warn("Error closing client",
			"server_name", s.Name,
			"error", err,
		)
	}
	s.Client = nil
}

// Close is a no-op on a server that was never connected or is already closed.
func (s *MCPServer) Close() error {
	if s.Client == nil {
		return nil
	}

	logger.Logger.Debug("Closing MCP server", "server_name", s.Name)
	if err := s.Client.Close(); err != nil {
		return fmt.Errorf("failed to close server %s: %w", s.Name, err)
	}
	s.Client = nil
	return nil
}

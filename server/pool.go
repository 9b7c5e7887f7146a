package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
)

// Conn is a connected tool server.
type Conn interface {
	CallTool(ctx context.Context, tool string, args map[string]any) model.ToolResponse
	ListTools(ctx context.Context) ([]model.ToolDefinition, error)
	Close() error
}

// Factory opens a connection for one server configuration.
type Factory func(ctx context.Context, cfg model.Server) (Conn, error)

// Open is the default Factory: cli servers run locally, everything else
// speaks MCP.
func Open(ctx context.Context, cfg model.Server) (Conn, error) {
	if cfg.Type == model.CLI {
		srv, err := NewCLIServer(cfg)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}

	srv, err := NewMCPServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Pool holds the connected servers of a run, keyed by name.
type Pool struct {
	mu      sync.RWMutex
	servers map[string]Conn
}

// Connect opens every configured server. On any failure the servers already
// opened are closed.
func Connect(ctx context.Context, configs []model.Server, factory Factory) (*Pool, error) {
	if factory == nil {
		factory = Open
	}

	p := &Pool{servers: make(map[string]Conn, len(configs))}
	for _, cfg := range configs {
		if _, dup := p.servers[cfg.Name]; dup {
			_ = p.Close()
			return nil, fmt.Errorf("duplicate server name: %s", cfg.Name)
		}

		srv, err := factory(ctx, cfg)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.servers[cfg.Name] = srv
	}
	return p, nil
}

func (p *Pool) Get(name string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	srv, ok := p.servers[name]
	return srv, ok
}

// CallTool routes a call to the named server. An unknown server is reported as
// an error response.
func (p *Pool) CallTool(ctx context.Context, serverName, tool string, args map[string]any) model.ToolResponse {
	srv, ok := p.Get(serverName)
	if !ok {
		return model.ErrorResponse(fmt.Sprintf("unknown server: %s", serverName))
	}
	return srv.CallTool(ctx, tool, args)
}

// Tool looks up a single tool definition by name.
func (p *Pool) Tool(ctx context.Context, serverName, tool string) (model.ToolDefinition, error) {
	srv, ok := p.Get(serverName)
	if !ok {
		return model.ToolDefinition{}, fmt.Errorf("unknown server: %s", serverName)
	}

	defs, err := srv.ListTools(ctx)
	if err != nil {
		return model.ToolDefinition{}, err
	}
	for _, d := range defs {
		if d.Name == tool {
			return d, nil
		}
	}
	return model.ToolDefinition{}, fmt.Errorf("tool %s not found on server %s", tool, serverName)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, srv := range p.servers {
		if err := srv.Close(); err != nil {
			logger.Logger.Warn("Failed to close server", "server_name", name, "error", err)
			errs = append(errs, err)
		}
	}
	p.servers = map[string]Conn{}
	return errors.Join(errs...)
}

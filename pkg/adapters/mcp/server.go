package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegistryURI is the resource exposing the shared registry status.
const RegistryURI = "stepflow://registry"

// Server wraps a Wizard and exposes it as an MCP Server.
type Server struct {
	wizard    ports.Wizard
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(wizard ports.Wizard, opts ...Option) *Server {
	s := &Server{
		wizard:    wizard,
		mcpServer: server.NewMCPServer("stepflow-mcp", strings.TrimSpace(stepflow.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type startArgs struct {
	Flags map[string]bool `json:"flags"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type gotoArgs struct {
	SessionID string        `json:"session_id"`
	StepID    domain.StepID `json:"step_id"`
}

type completeArgs struct {
	SessionID string         `json:"session_id"`
	StepID    domain.StepID  `json:"step_id"`
	Payload   domain.Payload `json:"payload"`
}

type profileArgs struct {
	SessionID string `json:"session_id"`
	ProfileID string `json:"profile_id"`
}

func sessionParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by start_session"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a wizard session and enter its first available step."),
		mcp.WithObject("flags", mcp.Description("Feature flags for the session, e.g. {\"media\": true}")),
		mcp.WithOutputSchema[domain.SessionSnapshot](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the state, context and available steps of a session."),
		sessionParam(),
		mcp.WithOutputSchema[domain.SessionSnapshot](),
	), mcp.NewStructuredToolHandler(s.handleSnapshot))

	s.mcpServer.AddTool(mcp.NewTool("advance",
		mcp.WithDescription("Move to the next available step."),
		sessionParam(),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleAdvance))

	s.mcpServer.AddTool(mcp.NewTool("retreat",
		mcp.WithDescription("Move to the previous available step."),
		sessionParam(),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleRetreat))

	s.mcpServer.AddTool(mcp.NewTool("go_to_step",
		mcp.WithDescription("Jump to an available step."),
		sessionParam(),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Target step ID")),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleGoTo))

	s.mcpServer.AddTool(mcp.NewTool("complete_step",
		mcp.WithDescription("Submit a step's payload. The context is updated and navigation recomputed."),
		sessionParam(),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Step being completed")),
		mcp.WithObject("payload", mcp.Description("Fields the step submits, e.g. {\"selectedCategory\": \"job\"}")),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleComplete))

	s.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Clear the session context and return to the first step."),
		sessionParam(),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	s.mcpServer.AddTool(mcp.NewTool("activate_profile",
		mcp.WithDescription("Apply a flow profile to the session."),
		sessionParam(),
		mcp.WithString("profile_id", mcp.Required(), mcp.Description("Flow profile ID")),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleActivateProfile))

	s.mcpServer.AddTool(mcp.NewTool("deactivate_profile",
		mcp.WithDescription("Return the session to step-by-step navigation."),
		sessionParam(),
		mcp.WithOutputSchema[domain.NavigationResult](),
	), mcp.NewStructuredToolHandler(s.handleDeactivateProfile))

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("End a session."),
		sessionParam(),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", "")
		if err := s.wizard.EndSession(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("session " + id + " ended"), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("registry_status",
		mcp.WithDescription("Get the registered steps, their current order and the active profile."),
		mcp.WithOutputSchema[domain.RegistryStatus](),
	), mcp.NewStructuredToolHandler(s.handleRegistryStatus))
}

// Handler methods for structured tools

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args startArgs) (domain.SessionSnapshot, error) {
	return s.wizard.StartSession(ctx, args.Flags)
}

func (s *Server) handleSnapshot(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.SessionSnapshot, error) {
	return s.wizard.Snapshot(ctx, args.SessionID)
}

func (s *Server) handleAdvance(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.NavigationResult, error) {
	return s.wizard.Advance(ctx, args.SessionID)
}

func (s *Server) handleRetreat(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.NavigationResult, error) {
	return s.wizard.Retreat(ctx, args.SessionID)
}

func (s *Server) handleGoTo(ctx context.Context, _ mcp.CallToolRequest, args gotoArgs) (domain.NavigationResult, error) {
	return s.wizard.GoTo(ctx, args.SessionID, args.StepID)
}

func (s *Server) handleComplete(ctx context.Context, _ mcp.CallToolRequest, args completeArgs) (domain.NavigationResult, error) {
	res, err := s.wizard.Complete(ctx, args.SessionID, args.StepID, args.Payload)
	if err != nil {
		s.logger.Debug("MCP complete_step rejected", "session_id", args.SessionID, "step_id", args.StepID, "err", err)
	}
	return res, err
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.NavigationResult, error) {
	return s.wizard.Reset(ctx, args.SessionID)
}

func (s *Server) handleActivateProfile(ctx context.Context, _ mcp.CallToolRequest, args profileArgs) (domain.NavigationResult, error) {
	return s.wizard.ActivateProfile(ctx, args.SessionID, args.ProfileID)
}

func (s *Server) handleDeactivateProfile(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (domain.NavigationResult, error) {
	return s.wizard.DeactivateProfile(ctx, args.SessionID)
}

func (s *Server) handleRegistryStatus(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (domain.RegistryStatus, error) {
	return s.wizard.RegistryStatus(ctx), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(RegistryURI, "Step Registry Status",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.wizard.RegistryStatus(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      RegistryURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

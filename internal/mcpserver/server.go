// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes trámite tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/tramite"
)

const modelURI = "tramites://record-model"

// Server wraps the MCP server with trámite tools.
type Server struct {
	mcp *server.MCPServer
	svc *tramite.Service
	now func() time.Time
}

// New creates a new MCP server with all trámite tools registered.
func New(svc *tramite.Service, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{svc: svc, now: now}

	s.mcp = server.NewMCPServer(
		"Tramites",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tramites",
		mcp.WithDescription("List trámites, optionally only those enabled for an academic period."),
		mcp.WithString("period", mcp.Description("Academic period such as 2025-1 (optional)")),
	), s.listTramites)

	s.mcp.AddTool(mcp.NewTool("get_tramite",
		mcp.WithDescription("Read a trámite with its documentos, fechas, estados and habilitaciones."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Trámite id")),
	), s.getTramite)

	s.mcp.AddTool(mcp.NewTool("tramite_status",
		mcp.WithDescription("Derive the lifecycle status of a trámite (PENDING, ACTIVE, REMEDIATION, "+
			"FINISHED, NO_DATES or INACTIVE) at a given date."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Trámite id")),
		mcp.WithString("at", mcp.Description("Reference date YYYY-MM-DD (defaults to now)")),
	), s.tramiteStatus)

	s.mcp.AddTool(mcp.NewTool("attention_items",
		mcp.WithDescription("List fechas that need attention: expired, closing soon or with incomplete dates."),
		mcp.WithNumber("days", mcp.Description("Warning window in days (default 7)")),
	), s.attentionItems)

	s.mcp.AddTool(mcp.NewTool("change_status",
		mcp.WithDescription("Record a new estado for a trámite. A new ACTIVE estado deactivates the current one. "+
			"Read the record model first via get_record_model."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Trámite id")),
		mcp.WithString("status", mcp.Required(), mcp.Enum("ACTIVE", "INACTIVE")),
		mcp.WithString("actor", mcp.Required(), mcp.Description("Who makes the change")),
		mcp.WithString("reason", mcp.Description("Why the status changes")),
		mcp.WithBoolean("manual", mcp.Description("Override the status derived from dates")),
	), s.changeStatus)

	s.mcp.AddTool(mcp.NewTool("export_tramite",
		mcp.WithDescription("Export a trámite and all its records as a JSON bundle."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Trámite id")),
	), s.exportTramite)

	s.mcp.AddTool(mcp.NewTool("get_record_model",
		mcp.WithDescription("Returns the trámite record model: kinds, fields, status rules and validation messages."),
	), s.getRecordModel)

	s.mcp.AddResource(
		mcp.NewResource(modelURI, "Trámite Record Model",
			mcp.WithResourceDescription("Record kinds, fields and lifecycle rules of the trámite store."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordModel,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports err to the caller as a tool error.
func errorResult(err error) *mcp.CallToolResult {
	if msgs := apperr.Messages(err); errors.Is(err, apperr.ErrValidation) && len(msgs) > 0 {
		return mcp.NewToolResultError("validation failed:\n- " + strings.Join(msgs, "\n- "))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listTramites(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var items []*tramite.Tramite
	if period := req.GetString("period", ""); period != "" {
		items = s.svc.EnabledFor(period)
	} else {
		items = s.svc.Tramites.All()
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no trámites found"), nil
	}
	lines := make([]string, 0, len(items))
	for _, t := range items {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", t.ID, t.Code, t.Name))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getTramite(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.Tramite(id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"tramite":        t,
		"documentos":     s.svc.Documentos.ByOwner(id),
		"fechas":         s.svc.Fechas.ByOwner(id),
		"estados":        s.svc.Estados.ByOwner(id),
		"habilitaciones": s.svc.Habilitaciones.ByOwner(id),
	})
}

func (s *Server) tramiteStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	at := s.now()
	if v := req.GetString("at", ""); v != "" {
		d, err := record.ParseDate(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		at = d.Time
	}
	view, err := s.svc.Status(id, at)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(view)
}

func (s *Server) attentionItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := req.GetFloat("days", 0)
	if days < 0 {
		return mcp.NewToolResultError("days must not be negative"), nil
	}
	items := s.svc.Attention(s.now(), time.Duration(days*24)*time.Hour)
	if len(items) == 0 {
		return mcp.NewToolResultText("nothing needs attention"), nil
	}
	return jsonResult(items)
}

func (s *Server) changeStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := req.RequireString("actor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.ChangeStatus(ctx, id, tramite.StatusChange{
		Status: tramite.EstadoStatus(strings.ToUpper(strings.TrimSpace(status))),
		Actor:  strings.TrimSpace(actor),
		Reason: strings.TrimSpace(req.GetString("reason", "")),
		Manual: req.GetBool("manual", false),
	})
	if err != nil && !errors.Is(err, apperr.ErrPersistence) {
		return errorResult(err), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("estado %s recorded but not saved: %v", e.ID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("estado %s: %s", e.ID, e.Status)), nil
}

func (s *Server) exportTramite(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.Export(id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(b)
}

func (s *Server) getRecordModel(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordModel), nil
}

func (s *Server) readRecordModel(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      modelURI,
			MIMEType: "text/markdown",
			Text:     RecordModel,
		},
	}, nil
}

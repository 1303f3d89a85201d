// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cardsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/history"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/syncservice"
)

const formatURI = "cardsync://flashcard-format"

// Service is what the tools need from the sync layer.
type Service interface {
	Extract(ctx context.Context, target string) (*syncservice.Extraction, error)
	Sync(ctx context.Context, target, deck string, dryRun bool) (*syncservice.Report, error)
	Runs(deck string, limit int) ([]history.Run, error)
	LastActions(deck string, cards []models.Flashcard) ([]models.Action, error)
}

// Server wraps the MCP server with cardsync tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all cardsync tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cardsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("extract_flashcards",
		mcp.WithDescription("Walk the note graph from a start note (or every note in a vault directory) "+
			"and list the flashcards found. Does not contact Anki."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Start note name (e.g. Biology.md) or vault directory")),
		mcp.WithString("deck", mcp.Description("Deck whose sync history annotates each card (defaults to the target name)")),
	), s.extractFlashcards)

	s.mcp.AddTool(mcp.NewTool("sync_deck",
		mcp.WithDescription("Extract flashcards from target and reconcile them into an Anki deck: "+
			"create the deck if missing, update notes that changed on one side, import new cards."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Start note name or vault directory")),
		mcp.WithString("deck", mcp.Description("Deck name (defaults to the target name)")),
		mcp.WithBoolean("dry_run", mcp.Description("Plan only, do not modify Anki")),
	), s.syncDeck)

	s.mcp.AddTool(mcp.NewTool("sync_history",
		mcp.WithDescription("List recent sync runs, newest first."),
		mcp.WithString("deck", mcp.Description("Only runs for this deck (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), s.syncHistory)

	s.mcp.AddTool(mcp.NewTool("get_flashcard_format",
		mcp.WithDescription("Returns how flashcards and links must be written in notes."),
	), s.getFlashcardFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Flashcard Format",
			mcp.WithResourceDescription("How flashcards and wikilinks are written in vault notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFlashcardFormatResource,
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

type extraction struct {
	Target string       `json:"target"`
	Deck   string       `json:"deck"`
	Seeds  []string     `json:"seeds"`
	Cards  []cardStatus `json:"cards"`
}

type cardStatus struct {
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	LastAction models.Action `json:"last_action,omitempty"`
}

type syncSummary struct {
	Deck        string `json:"deck"`
	CreatedDeck bool   `json:"created_deck"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	DryRun      bool   `json:"dry_run"`
	RunID       int64  `json:"run_id,omitempty"`
}

func (s *Server) extractFlashcards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ex, err := s.svc.Extract(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deck := strings.TrimSpace(req.GetString("deck", ""))
	if deck == "" {
		deck = ex.Target.Deck
	}
	actions, err := s.svc.LastActions(deck, ex.Cards)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards := make([]cardStatus, len(ex.Cards))
	for i, c := range ex.Cards {
		cards[i] = cardStatus{Question: c.Question, Answer: c.Answer, LastAction: actions[i]}
	}
	out, _ := json.MarshalIndent(extraction{
		Target: target,
		Deck:   deck,
		Seeds:  ex.Target.Seeds,
		Cards:  cards,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deck := strings.TrimSpace(req.GetString("deck", ""))
	dryRun := req.GetBool("dry_run", false)

	rep, err := s.svc.Sync(ctx, target, deck, dryRun)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rep.Result == nil {
		return mcp.NewToolResultText(fmt.Sprintf("no flashcards found for %s", target)), nil
	}
	created, updated, unchanged := rep.Counts()
	out, _ := json.MarshalIndent(syncSummary{
		Deck:        rep.Deck,
		CreatedDeck: rep.Result.Plan.CreateDeck,
		Created:     created,
		Updated:     updated,
		Unchanged:   unchanged,
		DryRun:      rep.Result.DryRun,
		RunID:       rep.RunID,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck := req.GetString("deck", "")
	limit := req.GetInt("limit", 20)

	runs, err := s.svc.Runs(deck, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no runs recorded"), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getFlashcardFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FlashcardFormat), nil
}

func (s *Server) readFlashcardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     FlashcardFormat,
		},
	}, nil
}

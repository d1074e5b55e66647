package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/segment"
)

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "extract_questions",
			Description: "Extract Group A/B/C questions from an exam paper. Pass text to get the questions back immediately, or file_url (PDF) to start a background job; use get_job to follow it.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "Extracted text of the paper",
					},
					"file_url": map[string]any{
						"type":        "string",
						"description": "http(s) or s3:// URL of the paper PDF",
					},
					"filename": map[string]any{
						"type":        "string",
						"description": "Original filename, used to infer semester, subject code and year",
					},
				},
			},
		},
		{
			Name:        "get_job",
			Description: "Get the status of a processing job by ID.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"processing_id": map[string]any{
						"type":        "string",
						"description": "The processing ID returned from extract_questions",
					},
				},
				Required: []string{"processing_id"},
			},
		},
		{
			Name:        "list_jobs",
			Description: "List processing jobs, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_jobs call",
					},
				},
			},
		},
	}
}

// HandleExtractQuestions runs the extractor inline for text, or starts a
// background job for file_url.
func (s *Server) HandleExtractQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := observability.StartSpan(ctx, "tool.extract_questions")
	defer span.End()

	text := mcp.ParseString(req, "text", "")
	fileURL := mcp.ParseString(req, "file_url", "")
	filename := mcp.ParseString(req, "filename", "")

	if text == "" && fileURL == "" {
		return mcp.NewToolResultError("either text or file_url is required"), nil
	}

	if text != "" {
		ex := segment.Extractor{Observer: observability.SlogObserver(ctx, s.log)}
		records := ex.Extract(text)
		span.SetAttributes(attribute.Int("questions", len(records)))
		result := map[string]any{
			"questions": records,
			"count":     len(records),
			"by_group":  question.CountByGroup(records),
		}
		if filename != "" {
			result["metadata"] = metadata.FromFilename(filename)
		}
		if len(records) == 0 {
			result["message"] = "no questions extracted"
		}
		return jsonResult(result)
	}

	if filename == "" {
		filename = "paper.pdf"
	}
	p := processPayload{FileURL: fileURL, Filename: filename}
	if msg := p.validate(); msg != "" {
		return mcp.NewToolResultError(msg), nil
	}
	id, err := s.tasks.StartTask(ctx, ProcessRequest{FileURL: fileURL, Filename: filename})
	if err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}
	span.SetAttributes(attribute.String("processing_id", id))
	s.log.InfoContext(ctx, "Processing started", "processing_id", id, "file_url", fileURL)

	return jsonResult(map[string]any{
		"processing_id": id,
		"status":        "queued",
		"message":       "Processing started. Use get_job with this processing_id to check progress.",
	})
}

// HandleGetJob returns job details.
func (s *Server) HandleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := observability.StartSpan(ctx, "tool.get_job")
	defer span.End()

	id := mcp.ParseString(req, "processing_id", "")
	if id == "" {
		return mcp.NewToolResultError("processing_id is required"), nil
	}
	span.SetAttributes(attribute.String("processing_id", id))

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get job: %v", err)), nil
	}
	return jsonResult(job)
}

// HandleListJobs returns a page of jobs.
func (s *Server) HandleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := observability.StartSpan(ctx, "tool.list_jobs")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	cursor := mcp.ParseString(req, "cursor", "")

	jobs, next, err := s.jobs.ListJobs(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list jobs: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(jobs)))

	result := map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	}
	if next != "" {
		result["next_cursor"] = next
	}
	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

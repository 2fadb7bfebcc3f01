package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/model"
)

// StructureOptions are the generation parameters applied to every
// structuring request.
type StructureOptions struct {
	MaxOutputTokens int
	ThinkingEnabled bool
	ThinkingBudget  int
}

// BuildStructureRequest assembles one structuring request from a
// group's analyze-stage result, its metadata and the job's
// response-shape constraint. Temperature is pinned to 0 and output is
// constrained to JSON.
func BuildStructureRequest(job *model.BatchJob, group *model.BatchGroup, opts StructureOptions) client.BatchRequest {
	var sb strings.Builder
	writeGroupContext(&sb, group)
	sb.WriteString("## Analysis\n")
	if group.AnalyzeText != nil {
		sb.WriteString(*group.AnalyzeText)
	}

	cfg := &client.GenerationConfig{
		Temperature:      0,
		MaxOutputTokens:  opts.MaxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   json.RawMessage(job.ResponseSchema),
	}
	if opts.ThinkingEnabled {
		cfg.ThinkingBudget = opts.ThinkingBudget
	}

	return client.BatchRequest{
		Key:          group.Key,
		SystemPrompt: job.StructurePrompt,
		Contents:     sb.String(),
		Config:       cfg,
	}
}

// BuildAnalyzeRequest assembles one analyze-stage request from a
// group's raw source rows. Used by the submission flow.
func BuildAnalyzeRequest(group *model.BatchGroup, prompt string) client.BatchRequest {
	var sb strings.Builder
	writeGroupContext(&sb, group)
	sb.WriteString("## Source rows\n")
	sb.Write(group.Rows)

	return client.BatchRequest{
		Key:          group.Key,
		SystemPrompt: prompt,
		Contents:     sb.String(),
		Config: &client.GenerationConfig{
			Temperature: 0,
		},
	}
}

func writeGroupContext(sb *strings.Builder, group *model.BatchGroup) {
	sb.WriteString("## Context\n")
	if group.Municipality != "" {
		fmt.Fprintf(sb, "Municipality: %s\n", group.Municipality)
	}
	if group.State != "" {
		fmt.Fprintf(sb, "State: %s\n", group.State)
	}
	if group.Position != "" {
		fmt.Fprintf(sb, "Position: %s\n", group.Position)
	}
	sb.WriteString("\n")
}

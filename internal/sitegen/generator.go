package sitegen

import (
	"context"
	"encoding/base64"
	"log/slog"

	"deployer-backend/internal/attachments"
	"deployer-backend/internal/llm"
	"deployer-backend/pkg/api"
)

// TaskInput is the generation request for one round. Brief and checks are raw
// as submitted; seed substitution happens here.
type TaskInput struct {
	Brief       string
	Checks      []string
	Nonce       string
	Round       int
	Attachments []api.Attachment
}

// Generator turns a task brief into a validated, repaired manifest.
type Generator struct {
	model llm.LLM
}

func NewGenerator(model llm.LLM) *Generator {
	return &Generator{model: model}
}

// Generate runs the full pipeline: prompt composition, model call, manifest
// recovery, validation, repair, and attachment merge. The returned manifest
// satisfies the schema invariants; structural check failures are left to the
// caller.
func (g *Generator) Generate(ctx context.Context, in TaskInput, resolved []attachments.Resolved) (*Manifest, error) {
	brief := ApplySeed(in.Brief, in.Nonce)
	checks := make([]string, len(in.Checks))
	for i, check := range in.Checks {
		checks[i] = ApplySeed(check, in.Nonce)
	}

	prompt := ComposeTaskPrompt(brief, checks, in.Nonce, in.Round, in.Attachments)

	slog.Info("requesting manifest from model", "round", in.Round, "checks", len(checks))
	raw, err := g.model.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	manifest, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}

	var table *TableData
	if data, delimiter, ok := attachments.FindTable(resolved); ok {
		table = ParseTableData(data, delimiter)
	}

	if err := RepairManifest(manifest, checks, table); err != nil {
		return nil, err
	}

	mergeAttachments(manifest, resolved)

	slog.Info("manifest generated", "files", len(manifest.Files))
	return manifest, nil
}

// mergeAttachments adds resolved attachment content to the manifest, keyed by
// the attachment's declared name. Same-named generated files are overwritten
// so the deployed bytes always match the submitted attachment.
func mergeAttachments(m *Manifest, resolved []attachments.Resolved) {
	for _, att := range resolved {
		if att.Name == "" {
			continue
		}
		if att.IsText {
			m.Upsert(att.Name, att.Text(), "utf-8")
		} else {
			m.Upsert(att.Name, base64.StdEncoding.EncodeToString(att.Content), "base64")
		}
	}
}

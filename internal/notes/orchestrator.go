// Package notes runs the image-to-sections pipeline and the room-scoped
// services built on top of it.
package notes

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/jsonrepair"
	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/prompt"
	"github.com/hyperjump/kokuban/internal/reconcile"
	"github.com/hyperjump/kokuban/internal/vision"
)

// extractionModel is the slice of the vision client the orchestrator needs.
type extractionModel interface {
	Extract(ctx context.Context, promptText string, images []vision.Image) (string, error)
	GenerateImage(ctx context.Context, promptText string, reference vision.Image) ([]byte, string, error)
}

// Input describes one extraction run.
type Input struct {
	Current          vision.Image
	Previous         *vision.Image
	Existing         []models.SectionSummary
	GenerateDiagrams bool
}

// Output carries the reconciled section list and the ids consumed by merges.
type Output struct {
	Sections []models.Section
	Consumed []string
}

// Orchestrator coordinates one end-to-end image-to-sections call: exactly one
// extraction model call, then repair, parse, merge, and at most one
// image-generation call per diagram section.
type Orchestrator struct {
	model  extractionModel
	logger *zap.Logger
}

// NewOrchestrator wires an orchestrator around the given model client.
func NewOrchestrator(model extractionModel, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{model: model, logger: logger}
}

// Run performs one extraction. Model failures and unparseable output are hard
// errors: a partial section list must never overwrite good stored notes.
// Diagram image generation failures are logged and recovered from.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Output, error) {
	promptText := prompt.Build(in.Existing, in.Previous != nil)

	// The prompt announces the previous capture first, so attachment order
	// must match.
	images := make([]vision.Image, 0, 2)
	if in.Previous != nil {
		images = append(images, *in.Previous)
	}
	images = append(images, in.Current)

	raw, err := o.model.Extract(ctx, promptText, images)
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	repaired := jsonrepair.Repair(vision.StripCodeFence(raw))
	var sections []models.Section
	if err := json.Unmarshal([]byte(repaired), &sections); err != nil {
		return nil, fmt.Errorf("extraction output is not a valid section list: %w", err)
	}

	merged, consumed := reconcile.Merge(sections)
	if len(consumed) > 0 {
		o.logger.Info("merged split sections",
			zap.Int("before", len(sections)),
			zap.Int("after", len(merged)),
			zap.Strings("consumed", consumed))
	}

	if in.GenerateDiagrams {
		o.generateDiagramImages(ctx, in, merged)
	}

	return &Output{Sections: merged, Consumed: consumed}, nil
}

// generateDiagramImages fills ImageBytes for diagram sections. Reused sections
// that already carry a persisted image keep their URL and skip regeneration;
// any generation failure leaves the section without new bytes.
func (o *Orchestrator) generateDiagramImages(ctx context.Context, in Input, sections []models.Section) {
	existingImages := make(map[string]string, len(in.Existing))
	for _, sum := range in.Existing {
		if sum.ImageURL != "" {
			existingImages[sum.SectionID] = sum.ImageURL
		}
	}

	var otherContent []string
	for _, sec := range sections {
		if sec.Type != models.TypeDiagram {
			otherContent = append(otherContent, sec.Content)
		}
	}

	for i := range sections {
		sec := &sections[i]
		if sec.Type != models.TypeDiagram {
			continue
		}
		if url, ok := existingImages[sec.SectionID]; ok {
			sec.ImageURL = url
			continue
		}
		data, ext, err := o.model.GenerateImage(ctx, prompt.Diagram(*sec, otherContent), in.Current)
		if err != nil {
			o.logger.Warn("diagram image generation failed",
				zap.String("section_id", sec.SectionID), zap.Error(err))
			continue
		}
		if data == nil {
			o.logger.Warn("diagram image generation returned no image",
				zap.String("section_id", sec.SectionID))
			continue
		}
		sec.ImageBytes = data
		sec.ImageExt = ext
	}
}

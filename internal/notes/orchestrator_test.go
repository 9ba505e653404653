package notes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/vision"
)

type fakeModel struct {
	extract  func(ctx context.Context, promptText string, images []vision.Image) (string, error)
	generate func(ctx context.Context, promptText string, reference vision.Image) ([]byte, string, error)
}

func (f *fakeModel) Extract(ctx context.Context, promptText string, images []vision.Image) (string, error) {
	return f.extract(ctx, promptText, images)
}

func (f *fakeModel) GenerateImage(ctx context.Context, promptText string, reference vision.Image) ([]byte, string, error) {
	if f.generate == nil {
		return nil, "", errors.New("unexpected GenerateImage call")
	}
	return f.generate(ctx, promptText, reference)
}

func frame(tag byte) vision.Image {
	return vision.Image{Bytes: []byte{tag}, MIME: "image/jpeg"}
}

func TestRun_repairsAndParsesFencedOutput(t *testing.T) {
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			// Fenced, with a single-backslash LaTeX command the model failed
			// to escape.
			return "```json\n" +
				`[{"section_id":"block-1","type":"equation","content":"$\frac{1}{2}$"}]` +
				"\n```", nil
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())

	out, err := orch.Run(context.Background(), Input{Current: frame('a')})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(out.Sections))
	}
	if out.Sections[0].Content != `$\frac{1}{2}$` {
		t.Errorf("content %q", out.Sections[0].Content)
	}
}

func TestRun_promptAndImageOrder(t *testing.T) {
	var gotPrompt string
	var gotImages []vision.Image
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			gotPrompt = promptText
			gotImages = images
			return "[]", nil
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())

	prev := frame('p')
	_, err := orch.Run(context.Background(), Input{
		Current:  frame('c'),
		Previous: &prev,
		Existing: []models.SectionSummary{
			{SectionID: "block-1", Type: models.TypeNote, ContentPreview: "a"},
			{SectionID: "block-2", Type: models.TypeNote, ContentPreview: "b"},
			{SectionID: "diag-1", Type: models.TypeDiagram, ContentPreview: "c"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(gotPrompt, `"block-3"`) || !strings.Contains(gotPrompt, `"diag-2"`) {
		t.Error("prompt missing numbering continuation")
	}
	if !strings.Contains(gotPrompt, "PREVIOUS capture") {
		t.Error("prompt missing multi-frame rules")
	}
	if len(gotImages) != 2 || gotImages[0].Bytes[0] != 'p' || gotImages[1].Bytes[0] != 'c' {
		t.Errorf("images not attached previous-first: %v", gotImages)
	}
}

func TestRun_extractionFailureIsHard(t *testing.T) {
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			return "", errors.New("http 502")
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())
	if _, err := orch.Run(context.Background(), Input{Current: frame('a')}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_unparseableOutputIsHard(t *testing.T) {
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			return "I could not read the board, sorry.", nil
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())
	out, err := orch.Run(context.Background(), Input{Current: frame('a')})
	if err == nil {
		t.Fatalf("expected hard error, got %+v", out)
	}
}

func TestRun_mergesSplitSections(t *testing.T) {
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			return `[
				{"section_id":"block-1","type":"note","content":"The proof continues by"},
				{"section_id":"block-2","type":"note","content":"induction on the degree."}
			]`, nil
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())
	out, err := orch.Run(context.Background(), Input{Current: frame('a')})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Sections) != 1 || out.Sections[0].SectionID != "block-1" {
		t.Fatalf("sections %+v", out.Sections)
	}
	if len(out.Consumed) != 1 || out.Consumed[0] != "block-2" {
		t.Errorf("consumed %v", out.Consumed)
	}
}

func TestRun_diagramGeneration(t *testing.T) {
	var generatePrompts []string
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			return `[
				{"section_id":"block-1","type":"note","content":"Transcribed text."},
				{"section_id":"diag-1","type":"diagram","content":"old sketch","caption":"old"},
				{"section_id":"diag-2","type":"diagram","content":"new sketch","caption":"new"}
			]`, nil
		},
		generate: func(ctx context.Context, promptText string, reference vision.Image) ([]byte, string, error) {
			generatePrompts = append(generatePrompts, promptText)
			return []byte("png"), "png", nil
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())

	out, err := orch.Run(context.Background(), Input{
		Current: frame('a'),
		Existing: []models.SectionSummary{
			{SectionID: "diag-1", Type: models.TypeDiagram, ContentPreview: "old sketch", ImageURL: "http://x/old.png"},
		},
		GenerateDiagrams: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Reused diagram keeps its stored image and is not regenerated.
	if len(generatePrompts) != 1 {
		t.Fatalf("expected exactly 1 generation call, got %d", len(generatePrompts))
	}
	if !strings.Contains(generatePrompts[0], "new sketch") {
		t.Errorf("generation prompt %q", generatePrompts[0])
	}
	if !strings.Contains(generatePrompts[0], "Transcribed text.") {
		t.Error("generation prompt should list other sections' content for exclusion")
	}

	byID := map[string]models.Section{}
	for _, sec := range out.Sections {
		byID[sec.SectionID] = sec
	}
	if byID["diag-1"].ImageURL != "http://x/old.png" || byID["diag-1"].ImageBytes != nil {
		t.Errorf("diag-1 %+v", byID["diag-1"])
	}
	if string(byID["diag-2"].ImageBytes) != "png" || byID["diag-2"].ImageExt != "png" {
		t.Errorf("diag-2 %+v", byID["diag-2"])
	}
}

func TestRun_diagramGenerationFailureNonFatal(t *testing.T) {
	model := &fakeModel{
		extract: func(ctx context.Context, promptText string, images []vision.Image) (string, error) {
			return `[{"section_id":"diag-1","type":"diagram","content":"sketch"}]`, nil
		},
		generate: func(ctx context.Context, promptText string, reference vision.Image) ([]byte, string, error) {
			return nil, "", errors.New("http 429")
		},
	}
	orch := NewOrchestrator(model, zap.NewNop())
	out, err := orch.Run(context.Background(), Input{Current: frame('a'), GenerateDiagrams: true})
	if err != nil {
		t.Fatalf("generation failure must not fail the run: %v", err)
	}
	if out.Sections[0].ImageBytes != nil {
		t.Errorf("section %+v", out.Sections[0])
	}
}

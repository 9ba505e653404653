// Package prompt builds the instruction text for one extraction call.
//
// The builder is pure: given the room's existing-section summaries and whether
// a previous camera frame is attached, it produces the full prompt string. The
// numbering-continuation rules are what keep section ids stable across frames,
// so the model updates stored notes in place instead of duplicating them.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/kokuban/internal/models"
)

// Id namespaces recognized for numbering. Ids outside these families are
// ignored when computing continuation points.
const (
	BlockPrefix   = "block-"
	DiagramPrefix = "diag-"
)

const basePrompt = `You are an AI assistant helping convert a classroom chalkboard into structured lecture notes.

The input is an image of a chalkboard taken during a lecture.

Instructions:
- Extract ONLY clearly visible and legible content.
- Ignore erased, crossed-out, or partially blocked text.
- Focus on definitions, equations, step-by-step derivations, key bullet points, and diagrams.
- Do NOT hallucinate missing content. If handwriting is unclear, omit it.
- Merge lines that belong to one complete thought into a single section. Never cut a sentence or derivation in the middle and continue it in the next section.

Output format:
Return a JSON array of note sections and nothing else.

Each section has:
- section_id: "block-N" for text content, "diag-N" for diagrams
- type: one of ["definition", "equation", "step", "note", "diagram"]
- content: clean, readable text. Wrap inline math in $...$ and display math in $$...$$. Double every backslash in LaTeX commands (write \\frac, not \frac). For diagrams, describe what is drawn.
- caption: a short label, diagrams only

Example output:
[
  {"section_id": "block-1", "type": "definition", "content": "Eigenvalue: a scalar $\\lambda$ such that $Ax = \\lambda x$"},
  {"section_id": "diag-1", "type": "diagram", "content": "Unit circle with the angle $\\theta$ marked at the origin", "caption": "Unit circle"}
]`

const previousFrameRules = `Two photos are attached: the PREVIOUS capture first, then the CURRENT capture.
- The current frame is authoritative wherever its content is legible.
- If a region is blocked (e.g. by the professor) in the current frame but was clear in the previous frame, use the previous frame's reading.
- If content is blocked in both frames, omit it entirely. Do not guess.
- If an existing section's board area is blocked in the current frame, keep reusing its id and its existing content; do not replace it with a degraded reading.`

// Build returns the complete instruction text for one extraction call.
// existing carries the room's stored sections as of lock acquisition time;
// hasPreviousFrame indicates that the previous capture is attached ahead of
// the current one.
func Build(existing []models.SectionSummary, hasPreviousFrame bool) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if len(existing) > 0 {
		maxBlock, maxDiag := maxSuffixes(existing)
		b.WriteString("\n\nExisting sections already stored for this lecture:\n")
		for _, s := range existing {
			fmt.Fprintf(&b, "- %s [%s] %s\n", s.SectionID, s.Type, s.ContentPreview)
		}
		b.WriteString("\nRules for section ids:\n")
		b.WriteString("- If the board still shows content matching an existing section, REUSE that section's id so the stored note is updated in place. Never create a duplicate under a new id.\n")
		b.WriteString("- Mint a new id only for genuinely new content.\n")
		fmt.Fprintf(&b,
			"- Continue numbering after the highest existing id: the next new text section is %q and the next new diagram is %q. Never restart from %q or %q.\n",
			BlockPrefix+strconv.Itoa(maxBlock+1),
			DiagramPrefix+strconv.Itoa(maxDiag+1),
			BlockPrefix+"1", DiagramPrefix+"1")
	}

	if hasPreviousFrame {
		b.WriteString("\n\n")
		b.WriteString(previousFrameRules)
	}

	return b.String()
}

// maxSuffixes returns the highest numeric suffix in use per id namespace.
// Ids that do not parse as "<prefix><number>" are skipped.
func maxSuffixes(existing []models.SectionSummary) (maxBlock, maxDiag int) {
	for _, s := range existing {
		if n, ok := numericSuffix(s.SectionID, BlockPrefix); ok && n > maxBlock {
			maxBlock = n
		}
		if n, ok := numericSuffix(s.SectionID, DiagramPrefix); ok && n > maxDiag {
			maxDiag = n
		}
	}
	return maxBlock, maxDiag
}

func numericSuffix(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

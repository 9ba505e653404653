package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kokuban/internal/models"
)

// Diagram builds the instruction text for one diagram-illustration call. The
// image model receives the original chalkboard photo as reference; otherContent
// lists the text of every non-diagram section so the model leaves
// already-transcribed writing out of the rendered figure.
func Diagram(section models.Section, otherContent []string) string {
	var b strings.Builder
	b.WriteString("Render a clean instructional illustration of one diagram from the attached chalkboard photo.\n\n")
	fmt.Fprintf(&b, "Diagram description: %s\n", section.Content)
	if section.Caption != "" {
		fmt.Fprintf(&b, "Caption: %s\n", section.Caption)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Redraw only the described diagram as a simple, clear figure on a plain white background.\n")
	b.WriteString("- No chalkboard texture, no hands, no photo artifacts.\n")
	if len(otherContent) > 0 {
		b.WriteString("- The following board text is transcribed separately; do NOT include it in the image:\n")
		for _, content := range otherContent {
			fmt.Fprintf(&b, "  - %s\n", content)
		}
	}
	return b.String()
}

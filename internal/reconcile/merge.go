// Package reconcile heals mid-sentence splits in a freshly extracted section
// list. The model sometimes cuts one thought into two adjacent sections; the
// reconciler folds such fragments back together and reports which ids were
// absorbed so their stored rows can be deleted.
//
// The pass is deliberately conservative. A missed merge leaves two readable
// fragments; a wrong merge corrupts a stored note in place.
package reconcile

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kokuban/internal/models"
)

// typeRank orders section types for promotion on merge. Diagrams never
// participate in merges and carry no rank.
var typeRank = map[models.SectionType]int{
	models.TypeEquation:   3,
	models.TypeDefinition: 3,
	models.TypeStep:       2,
	models.TypeNote:       1,
}

// terminalPunct marks runes that end a complete thought. A fragment whose
// effective last character is none of these is read as trailing off
// mid-sentence.
var terminalPunct = map[rune]bool{
	'.': true, '!': true, '?': true, ':': true, ';': true, '—': true,
}

// Merge walks sections in board-reading order, folding each one into the
// preceding accumulator when the pair looks like a split thought. It returns
// the healed list and the ids of sections that were absorbed and must be
// deleted from the store. Merging is transitive: a freshly merged block is
// itself the candidate compared against the next incoming section.
func Merge(sections []models.Section) ([]models.Section, []string) {
	if len(sections) < 2 {
		return sections, nil
	}

	out := make([]models.Section, 0, len(sections))
	var consumed []string
	for _, s := range sections {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}
		acc := &out[len(out)-1]
		if !shouldMerge(*acc, s) {
			out = append(out, s)
			continue
		}
		acc.Content = joinContent(acc.Content, s.Content)
		acc.Type = promote(acc.Type, s.Type)
		consumed = append(consumed, s.SectionID)
	}
	return out, consumed
}

// shouldMerge decides whether right is the continuation of left.
func shouldMerge(left, right models.Section) bool {
	if left.Type == models.TypeDiagram || right.Type == models.TypeDiagram {
		return false
	}
	lc := strings.TrimSpace(left.Content)
	rc := strings.TrimSpace(right.Content)
	if lc == "" || rc == "" {
		return false
	}
	// Display equations are self-terminating on the left and open a new
	// standalone block on the right.
	if strings.HasSuffix(lc, "$$") {
		return false
	}
	if strings.HasPrefix(rc, "$$") {
		return false
	}
	last, ok := effectiveLastRune(lc)
	if !ok {
		// Nothing but an inline-math span: no terminal punctuation, so the
		// prose around it continues.
		return true
	}
	return !terminalPunct[last]
}

// effectiveLastRune returns the character that punctuation judgment is made
// on: the last rune of the content after a trailing inline-math span has been
// stripped, so "continuous on $[a,b]$" is judged on the prose, not on '$'.
func effectiveLastRune(s string) (rune, bool) {
	s = strings.TrimRight(stripTrailingInlineMath(s), " \t")
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r, true
}

// stripTrailingInlineMath removes a trailing $...$ span. Display-math closers
// ($$) and unbalanced dollars are left alone; the caller has already ruled
// out display math, and an unbalanced span has no opener to strip back to.
func stripTrailingInlineMath(s string) string {
	if !strings.HasSuffix(s, "$") || strings.HasSuffix(s, "$$") {
		return s
	}
	body := s[:len(s)-1]
	open := strings.LastIndexByte(body, '$')
	if open < 0 {
		return s
	}
	if open > 0 && body[open-1] == '$' {
		// The opener belongs to a $$ pair.
		return s
	}
	return body[:open]
}

func joinContent(left, right string) string {
	if strings.HasSuffix(left, "\n") {
		return left + right
	}
	return left + " " + right
}

func promote(a, b models.SectionType) models.SectionType {
	if typeRank[b] > typeRank[a] {
		return b
	}
	return a
}

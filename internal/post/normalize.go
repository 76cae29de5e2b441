package post

import (
	"regexp"
	"strings"
)

const (
	shortDraftCeiling = 280
	longDraftCeiling  = 4000
	ellipsisReserve   = 3
)

var (
	dashReplacer  = strings.NewReplacer("—", ",", "–", ",")
	spaceRuns     = regexp.MustCompile(`\s+`)
	paragraphCuts = regexp.MustCompile(`\n\s*\n`)
)

// DraftCeiling returns the hard length limit for a reply mode.
func DraftCeiling(mode Mode) int {
	if mode == ModeLong {
		return longDraftCeiling
	}
	return shortDraftCeiling
}

// NormalizeDraft enforces the house style on generated reply text.
// Em and en dashes become commas. Short mode collapses all whitespace
// runs; long mode preserves paragraph structure with single blank
// lines. The result never exceeds the mode's ceiling.
func NormalizeDraft(text string, mode Mode) string {
	text = dashReplacer.Replace(text)

	if mode == ModeLong {
		parts := paragraphCuts.Split(text, -1)
		paragraphs := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
		text = strings.Join(paragraphs, "\n\n")
	} else {
		text = strings.TrimSpace(spaceRuns.ReplaceAllString(text, " "))
	}

	ceiling := DraftCeiling(mode)
	runes := []rune(text)
	if len(runes) > ceiling {
		text = string(runes[:ceiling-ellipsisReserve]) + "..."
	}
	return text
}

package post

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeDraftShortCollapsesWhitespace(t *testing.T) {
	got := NormalizeDraft("hello   world\n\tagain ", ModeShort)
	if got != "hello world again" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeDraftReplacesDashes(t *testing.T) {
	got := NormalizeDraft("thought—provoking–maybe", ModeShort)
	if strings.ContainsAny(got, "—–") {
		t.Errorf("dashes remain in %q", got)
	}
	if got != "thought,provoking,maybe" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeDraftLongParagraphs(t *testing.T) {
	got := NormalizeDraft("Para one.\n\n\n  Para two.  ", ModeLong)
	if got != "Para one.\n\nPara two." {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeDraftLongDropsEmptyParagraphs(t *testing.T) {
	got := NormalizeDraft("A.\n\n   \n\nB.", ModeLong)
	if got != "A.\n\nB." {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeDraftShortTruncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := NormalizeDraft(long, ModeShort)
	if utf8.RuneCountInString(got) != 280 {
		t.Errorf("length = %d, want 280", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipsis marker: %q", got[len(got)-10:])
	}
	if got[:277] != long[:277] {
		t.Error("truncated prefix mismatch")
	}
}

func TestNormalizeDraftTruncationIsRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := NormalizeDraft(long, ModeShort)
	if !utf8.ValidString(got) {
		t.Error("truncation split a multibyte rune")
	}
	if n := utf8.RuneCountInString(got); n != 280 {
		t.Errorf("rune length = %d, want 280", n)
	}
}

func TestNormalizeDraftUnderCeilingUntouched(t *testing.T) {
	got := NormalizeDraft("short and sweet", ModeLong)
	if got != "short and sweet" {
		t.Errorf("got %q", got)
	}
}

func TestDraftCeiling(t *testing.T) {
	if DraftCeiling(ModeShort) != 280 {
		t.Error("short ceiling")
	}
	if DraftCeiling(ModeLong) != 4000 {
		t.Error("long ceiling")
	}
}

func TestQuadrantFor(t *testing.T) {
	tests := []struct {
		quality   float64
		intention string
		want      string
	}{
		{0.9, IntentionCreative, "Optimal (Target)"},
		{0.9, IntentionConsumptive, "Hedonism (WALL-E)"},
		{0.2, IntentionCreative, "Slop (Low Quality Output)"},
		{0.2, IntentionConsumptive, "Junk Food (Minimal Existence)"},
		{0.8, IntentionAmbiguous, "Transitional (High Quality)"},
		{0.3, IntentionAmbiguous, "Transitional (Low Quality)"},
		{0.5, IntentionCreative, "Slop (Low Quality Output)"}, // 0.5 is not High
		{0.9, "nonsense", "Pending (High Quality, Vector Unknown)"},
	}
	for _, tt := range tests {
		if got := QuadrantFor(tt.quality, tt.intention); got != tt.want {
			t.Errorf("QuadrantFor(%v, %q) = %q, want %q", tt.quality, tt.intention, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("long") != ModeLong {
		t.Error("long")
	}
	if ParseMode("") != ModeShort {
		t.Error("default")
	}
	if ParseMode("weird") != ModeShort {
		t.Error("fallback")
	}
}

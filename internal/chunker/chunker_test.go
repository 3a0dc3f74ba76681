package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// repeatSentence builds deterministic prose of at least n bytes made of
// sentences terminated with '.'.
func repeatSentence(sentence string, n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(sentence)
		b.WriteByte(' ')
	}
	return b.String()[:n]
}

func TestSplitEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty string", ""},
		{"whitespace only", "   \n\t  \n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Split(tt.text); got != nil {
				t.Errorf("Split(%q) = %v, want nil", tt.text, got)
			}
		})
	}
}

func TestSplitShortText(t *testing.T) {
	t.Run("below length floor", func(t *testing.T) {
		if got := Split("too short to keep."); got != nil {
			t.Errorf("expected no chunks for sub-floor text, got %v", got)
		}
	})

	t.Run("single chunk", func(t *testing.T) {
		text := "This document easily clears the fifty character minimum length floor."
		got := Split(text)
		if len(got) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(got))
		}
		if got[0] != text {
			t.Errorf("expected whole trimmed text, got %q", got[0])
		}
	})

	t.Run("surrounding whitespace trimmed", func(t *testing.T) {
		text := "This document easily clears the fifty character minimum length floor."
		got := Split("\n  " + text + "  \n")
		if len(got) != 1 || got[0] != text {
			t.Errorf("expected trimmed chunk, got %v", got)
		}
	})
}

func TestSplitDeterminism(t *testing.T) {
	text := repeatSentence("The system ingests documents and answers similarity queries.", 5000)

	first := Split(text)
	second := Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitSourceOrder(t *testing.T) {
	text := repeatSentence("Every chunk must appear in left to right source order.", 4200)

	chunks := Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	// Each chunk must start at or after the previous chunk's start position.
	prev := -1
	offset := 0
	for i, c := range chunks {
		pos := strings.Index(text[offset:], c)
		if pos < 0 {
			// Overlapping chunks can begin before the previous search offset.
			pos = strings.Index(text, c)
			if pos < 0 {
				t.Fatalf("chunk %d not found in source text", i)
			}
		} else {
			pos += offset
		}
		if pos <= prev {
			t.Errorf("chunk %d out of source order: position %d after %d", i, pos, prev)
		}
		prev = pos
		offset = pos
	}
}

func TestSplitLengthFloor(t *testing.T) {
	text := repeatSentence("Short trailing fragments are dropped as noise.", 3333)

	for i, c := range Split(text) {
		if len(c) < MinChunkLength {
			t.Errorf("chunk %d has length %d, below floor %d", i, len(c), MinChunkLength)
		}
	}
}

func TestSplitOverlapProperty(t *testing.T) {
	// Newline-free text with sentence breaks at predictable positions.
	text := repeatSentence("All adjacent chunks share a region of source text near the boundary.", 3000)

	chunks := Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		// The head of chunk i+1 must re-appear inside the tail of chunk i,
		// within the snap tolerance of the boundary cut.
		head := chunks[i+1]
		if len(head) > DefaultOverlap/2 {
			head = head[:DefaultOverlap/2]
		}
		if !strings.Contains(chunks[i], head) {
			t.Errorf("chunks %d and %d do not overlap", i, i+1)
		}
	}
}

func TestSplitSnapsToSentenceBoundary(t *testing.T) {
	// One sentence terminator placed past the window midpoint; the cut must
	// land just after it instead of at the raw 100-byte boundary.
	sentence := strings.Repeat("a", 70) + "."
	text := sentence + " " + strings.Repeat("b", 200)

	chunks := Split(text, WithTargetSize(100), WithOverlap(20), WithMinLength(10))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0] != sentence {
		t.Errorf("expected first chunk cut at sentence end, got %q", chunks[0])
	}
}

func TestSplitSnapsToLineBreak(t *testing.T) {
	line := strings.Repeat("x", 80)
	text := line + "\n" + strings.Repeat("y", 300)

	chunks := Split(text, WithTargetSize(100), WithOverlap(20), WithMinLength(10))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0] != line {
		t.Errorf("expected first chunk cut at line break, got %q", chunks[0])
	}
}

func TestSplitIgnoresEarlyBreakPoint(t *testing.T) {
	// Terminator before the midpoint: the window must cut at the raw boundary.
	text := strings.Repeat("a", 30) + "." + strings.Repeat("b", 300)

	chunks := Split(text, WithTargetSize(100), WithOverlap(20), WithMinLength(10))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if len(chunks[0]) != 100 {
		t.Errorf("expected raw 100-byte cut, got %d bytes", len(chunks[0]))
	}
}

func TestSplit2400CharDocument(t *testing.T) {
	// A 2400-byte document with defaults yields three chunks covering the
	// source with ~200-byte overlaps.
	text := repeatSentence("Business requirements are distilled from repository analysis and reviewed by humans.", 2400)

	chunks := Split(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) < MinChunkLength {
			t.Errorf("chunk %d below length floor", i)
		}
	}
	// Last chunk must reach the end of the source.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(strings.TrimSpace(text), last[len(last)-40:]) {
		t.Error("final chunk does not cover the tail of the source text")
	}
}

func TestSplitNoDegenerateTrailingChunk(t *testing.T) {
	// 1100 bytes: the walk must not emit a final chunk made almost entirely
	// of overlap when fewer than overlap bytes of new content remain.
	text := repeatSentence("Trailing windows with no new content are suppressed entirely.", 1150)

	chunks := Split(text)
	for i := 1; i < len(chunks); i++ {
		if strings.Contains(chunks[i-1], chunks[i]) {
			t.Errorf("chunk %d is wholly contained in chunk %d", i, i-1)
		}
	}
}

func TestSplitMultiByteRuneBoundaries(t *testing.T) {
	t.Run("no break points", func(t *testing.T) {
		// 3600 bytes of three-byte runes with no '.' or '\n' anywhere: every
		// cut and every overlap start must land on a rune boundary.
		text := strings.Repeat("世", 1200)

		chunks := Split(text)
		if len(chunks) < 2 {
			t.Fatalf("expected several chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Errorf("chunk %d contains invalid UTF-8 at a boundary cut (len=%d)", i, len(c))
			}
		}
	})

	t.Run("cjk prose", func(t *testing.T) {
		// Ideographic full stops are not snap targets, so cuts fall at raw
		// window boundaries throughout.
		var b strings.Builder
		for b.Len() < 3000 {
			b.WriteString("知识库按项目隔离，检索结果带相似度分数。")
		}
		text := b.String()

		chunks := Split(text)
		if len(chunks) < 2 {
			t.Fatalf("expected several chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Errorf("chunk %d contains invalid UTF-8", i)
			}
		}
	})

	t.Run("window smaller than a rune", func(t *testing.T) {
		// The walk must still advance one whole rune at a time.
		text := strings.Repeat("界", 40)

		chunks := Split(text, WithTargetSize(2), WithOverlap(0), WithMinLength(1))
		if len(chunks) == 0 {
			t.Fatal("expected chunks")
		}
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Errorf("chunk %d contains invalid UTF-8", i)
			}
		}
	})
}

func TestSplitOverlapClamp(t *testing.T) {
	// Overlap past the window midpoint is replaced so the walk always
	// advances; this must terminate.
	text := repeatSentence("Progress is guaranteed for any parameter combination.", 4000)

	chunks := Split(text, WithTargetSize(400), WithOverlap(399))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
}

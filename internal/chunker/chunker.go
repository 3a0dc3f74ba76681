// Package chunker splits document text into overlapping segments suitable
// for independent embedding and retrieval.
//
// The split is deterministic: the same input and parameters always produce
// the same segments in source order. Windows are cut at the later of the
// last sentence terminator or line break when one falls past the window
// midpoint, so sentences are not severed when a natural boundary is nearby.
// Consecutive segments share an overlap region for retrieval continuity
// across boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTargetSize is the sliding window size in bytes.
	DefaultTargetSize = 1000

	// DefaultOverlap is the number of bytes shared between consecutive segments.
	DefaultOverlap = 200

	// MinChunkLength is the content floor: trimmed segments shorter than this
	// are discarded as noise.
	MinChunkLength = 50
)

// Option configures a split using the functional options pattern.
type Option func(*config)

type config struct {
	targetSize int
	overlap    int
	minLength  int
}

// WithTargetSize sets the sliding window size. Non-positive values fall back
// to DefaultTargetSize.
func WithTargetSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.targetSize = n
		}
	}
}

// WithOverlap sets the overlap between consecutive segments. Negative values
// are treated as zero; overlaps that would prevent forward progress are
// clamped below the target size.
func WithOverlap(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithMinLength sets the minimum trimmed segment length. Negative values are
// treated as zero (keep everything).
func WithMinLength(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minLength = n
		}
	}
}

func buildConfig(opts []Option) config {
	cfg := config{
		targetSize: DefaultTargetSize,
		overlap:    DefaultOverlap,
		minLength:  MinChunkLength,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	// An overlap past the window midpoint could move the next start backwards
	// after a midpoint snap, stalling the walk.
	if cfg.overlap*2 > cfg.targetSize {
		cfg.overlap = cfg.targetSize / 5
	}
	return cfg
}

// Split divides text into ordered overlapping segments.
//
// Each window of targetSize bytes is cut at the later of its last '.' or
// last '\n' when that break point lies past the window midpoint; otherwise
// at the raw boundary, backed off so no multi-byte rune is split. The next
// window starts overlap bytes before the previous cut, also aligned to a
// rune boundary. Segments are trimmed and those under the minimum length are
// dropped. Empty or whitespace-only input yields no segments; text shorter
// than the window yields at most one.
func Split(text string, opts ...Option) []string {
	cfg := buildConfig(opts)

	n := len(text)
	if n == 0 {
		return nil
	}

	var segments []string
	for start := 0; start < n; {
		end := start + cfg.targetSize
		if end >= n {
			end = n
		} else {
			// Snap to the later of the last sentence terminator or line
			// break inside the window, but only past the midpoint.
			window := text[start:end]
			breakPoint := strings.LastIndexByte(window, '.')
			if nl := strings.LastIndexByte(window, '\n'); nl > breakPoint {
				breakPoint = nl
			}
			if breakPoint > cfg.targetSize/2 {
				end = start + breakPoint + 1
			} else {
				// A raw boundary cut can land inside a multi-byte rune;
				// back off to the rune start so both halves stay valid UTF-8.
				for end > start && !utf8.RuneStart(text[end]) {
					end--
				}
				if end == start {
					_, size := utf8.DecodeRuneInString(text[start:])
					end = start + size
				}
			}
		}

		segment := strings.TrimSpace(text[start:end])
		if len(segment) >= cfg.minLength {
			segments = append(segments, segment)
		}

		if end == n {
			break
		}
		next := end - cfg.overlap
		// The overlap start must also sit on a rune boundary.
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
		// A trailing window with less than overlap bytes of new content
		// would be a degenerate near-duplicate of the previous segment.
		if start >= n-cfg.overlap {
			break
		}
	}

	return segments
}

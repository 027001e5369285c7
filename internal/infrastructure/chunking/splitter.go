package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 100
)

// separators are tried in order: paragraphs, lines, words, then raw runes.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most ChunkSize runes, preferring
// natural boundaries and carrying up to Overlap runes of trailing context into
// the next chunk.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	raw := s.split(text, separators)
	out := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (s *Splitter) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, seps[i+1:]
			break
		}
	}
	if sep == "" {
		return s.window(text)
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range strings.Split(text, sep) {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		if runeLen(piece) <= s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, sep)...)
			good = nil
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, sep)...)
	}
	return out
}

// merge packs pieces greedily, keeping a tail of at most Overlap runes when a
// chunk is emitted.
func (s *Splitter) merge(pieces []string, sep string) []string {
	var (
		out    []string
		window []string
	)
	for _, piece := range pieces {
		if len(window) > 0 && joinedLen(append(window, piece), sep) > s.ChunkSize {
			out = append(out, strings.Join(window, sep))
			for len(window) > 0 &&
				(joinedLen(window, sep) > s.Overlap || joinedLen(append(window, piece), sep) > s.ChunkSize) {
				window = window[1:]
			}
		}
		window = append(window, piece)
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, sep))
	}
	return out
}

// window is the last resort for text without any separator: fixed rune
// windows advancing by ChunkSize-Overlap.
func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func joinedLen(parts []string, sep string) int {
	if len(parts) == 0 {
		return 0
	}
	n := runeLen(sep) * (len(parts) - 1)
	for _, p := range parts {
		n += runeLen(p)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

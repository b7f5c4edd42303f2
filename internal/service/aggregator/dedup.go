package aggregator

import (
	"strings"
	"unicode"
)

// shortUtteranceRunes is the folded length at or below which an utterance is
// never deduplicated down to nothing.
const shortUtteranceRunes = 10

// OverlapConfig bounds the overlap lengths boundary dedup will accept.
type OverlapConfig struct {
	MinOverlap int
	MaxOverlap int
}

// BoundaryResult describes one boundary dedup pass.
type BoundaryResult struct {
	Text       string
	OverlapLen int
	// Trimmed is true when an overlap was removed from the current text.
	Trimmed bool
	// Protected is true when a full removal was rejected to keep a short utterance.
	Protected bool
}

// DedupBoundary removes the longest prefix of curr that repeats a suffix of
// prev. Both spans are compared trimmed, case-folded and with whitespace runs
// collapsed; the original curr text is cut at the matched prefix. For
// non-CJK text an overlap must start and end on word boundaries.
func DedupBoundary(prev, curr string, cfg OverlapConfig) BoundaryResult {
	curr = strings.TrimSpace(curr)
	res := BoundaryResult{Text: curr}
	if prev == "" || curr == "" || cfg.MinOverlap <= 0 {
		return res
	}

	pf, _ := foldRunes(prev, true)
	cf, cidx := foldRunes(curr, true)

	maxL := cfg.MaxOverlap
	if maxL < cfg.MinOverlap {
		maxL = cfg.MinOverlap
	}
	if maxL > len(pf) {
		maxL = len(pf)
	}
	if maxL > len(cf) {
		maxL = len(cf)
	}

	for l := maxL; l >= cfg.MinOverlap; l-- {
		if !runesEqual(pf[len(pf)-l:], cf[:l]) {
			continue
		}
		if !isCJKDominant(curr) && !wordAligned(pf, cf, l) {
			continue
		}

		currRunes := []rune(curr)
		cut := len(currRunes)
		if l < len(cf) {
			cut = cidx[l]
		}
		rest := strings.TrimLeftFunc(string(currRunes[cut:]), func(r rune) bool {
			return unicode.IsSpace(r) || strings.ContainsRune(",，、", r)
		})

		if rest == "" && len(cf) <= shortUtteranceRunes {
			res.Protected = true
			return res
		}
		res.Text = rest
		res.OverlapLen = l
		res.Trimmed = true
		return res
	}
	return res
}

// wordAligned reports whether an overlap of length l starts on a word
// boundary in prev and ends on one in curr.
func wordAligned(prev, curr []rune, l int) bool {
	start := len(prev) - l
	if start > 0 && prev[start-1] != ' ' && prev[start] != ' ' {
		return false
	}
	if l < len(curr) && curr[l] != ' ' && curr[l-1] != ' ' && !unicode.IsPunct(curr[l]) {
		return false
	}
	return true
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasRunePrefix(s, prefix []rune) bool {
	return len(s) >= len(prefix) && runesEqual(s[:len(prefix)], prefix)
}

// minRepeatUnit is the shortest span treated as a repetition.
const minRepeatUnit = 3

var repeatSplitRatios = []float64{0.6, 0.7, 0.8, 0.9}

// DedupInternalRepetition removes a recognizer echo inside one utterance. A
// text whose second half starts with its first half keeps the first half;
// otherwise, for split ratios 0.6 to 0.9, a tail that restates the start of
// the head is dropped. The rules are applied until nothing changes, so the
// result is stable under repeated application.
func DedupInternalRepetition(text string) string {
	text = strings.TrimSpace(text)
	for {
		next := dedupRepetitionOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func dedupRepetitionOnce(text string) string {
	rs := []rune(text)
	n := len(rs)
	if n < 2*minRepeatUnit {
		return text
	}

	half := n / 2
	first := trimRunes(rs[:half])
	second := trimRunes(rs[half:])
	if len(first) >= minRepeatUnit && hasRunePrefix(second, first) && isTrivialRemainder(second[len(first):]) {
		return string(first)
	}

	cjk := isCJKDominant(text)
	for _, ratio := range repeatSplitRatios {
		split := int(float64(n)*ratio + 0.5)
		if split <= 0 || split >= n {
			continue
		}
		head := trimRunes(rs[:split])
		tail := trimRunes(rs[split:])
		if len(tail) < minRepeatUnit {
			continue
		}
		// Latin echoes must repeat at least two whole words.
		if !cjk && (!unicode.IsSpace(rs[split-1]) && !unicode.IsSpace(rs[split]) || len(strings.Fields(string(tail))) < 2) {
			continue
		}
		if hasRunePrefix(head, tail) {
			return string(head)
		}
	}
	return text
}

// isTrivialRemainder reports whether rs holds only punctuation or space.
func isTrivialRemainder(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsSpace(r) && !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

func trimRunes(rs []rune) []rune {
	start, end := 0, len(rs)
	for start < end && unicode.IsSpace(rs[start]) {
		start++
	}
	for end > start && unicode.IsSpace(rs[end-1]) {
		end--
	}
	return rs[start:end]
}

package aggregator

import (
	"strings"
	"unicode"
)

// SplitTail splits committed text into the part released now and a short
// trailing span held back for boundary dedup against the next utterance. The
// tail is TailCarryCjkChars characters for CJK text or TailCarryWords words
// otherwise. Nothing is held when the head would be smaller than the tail.
func SplitTail(text string, t Tuning) (head, tail string) {
	text = strings.TrimSpace(text)
	rs := []rune(text)
	if len(rs) == 0 {
		return "", ""
	}

	var cut int
	if isCJKDominant(text) {
		cut = cjkTailCut(rs, t.TailCarryCjkChars)
	} else {
		cut = wordTailCut(rs, t.TailCarryWords)
	}
	if cut <= 0 {
		return text, ""
	}

	head = strings.TrimSpace(string(rs[:cut]))
	tail = strings.TrimSpace(string(rs[cut:]))
	if head == "" || tail == "" {
		return text, ""
	}
	return head, tail
}

// cjkTailCut returns the rune index where the last n characters start, or -1
// when fewer than 2n characters are available.
func cjkTailCut(rs []rune, n int) int {
	if n <= 0 {
		return -1
	}
	total := 0
	for _, r := range rs {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			total++
		}
	}
	if total < 2*n {
		return -1
	}
	seen := 0
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) {
			seen++
			if seen == n {
				return i
			}
		}
	}
	return -1
}

// wordTailCut returns the rune index where the last n words start, or -1 when
// fewer than 2n words are available.
func wordTailCut(rs []rune, n int) int {
	if n <= 0 {
		return -1
	}
	starts := make([]int, 0, 16)
	inWord := false
	for i, r := range rs {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			starts = append(starts, i)
			inWord = true
		}
	}
	if len(starts) < 2*n {
		return -1
	}
	return starts[len(starts)-n]
}

package aggregator

import (
	"strings"
	"unicode"
)

const strongTerminalPunct = "。！？.!?；;"

const cjkPunct = "，。！？、；：「」『』（）"

// closers may follow terminal punctuation without changing its meaning.
const closers = "\"'”’」』）)]】"

var (
	connectivesEn = map[string]struct{}{
		"and": {}, "but": {}, "so": {}, "or": {}, "because": {}, "then": {}, "the": {},
		"a": {}, "an": {}, "to": {}, "of": {}, "with": {}, "that": {}, "which": {},
		"if": {}, "when": {}, "like": {}, "um": {}, "uh": {}, "er": {}, "well": {},
	}
	connectivesZh = []string{
		"然后", "所以", "但是", "因为", "而且", "还有", "就是", "那个", "这个", "如果",
		"或者", "不过", "然後", "還有", "那個", "這個", "嗯", "啊", "呃", "和", "跟",
	}
	connectivesJa = []string{
		"けど", "けれど", "から", "ので", "のに", "えーと", "あの", "そして", "それで", "でも", "て", "が",
	}
	connectivesKo = []string{
		"그리고", "그래서", "하지만", "그런데", "근데", "그러니까", "음", "어",
	}
)

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// cjkCount counts CJK characters.
func cjkCount(s string) int {
	n := 0
	for _, r := range s {
		if isCJK(r) {
			n++
		}
	}
	return n
}

// wordCount counts whitespace separated words, ignoring CJK characters.
func wordCount(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || isCJK(r) || (unicode.IsPunct(r) && r != '\'')
	}))
}

// isCJKDominant reports whether CJK characters make up at least half of the letters.
func isCJKDominant(s string) bool {
	cjk, letters := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if isCJK(r) {
			cjk++
		}
	}
	return cjk > 0 && cjk*2 >= letters
}

// hasStrongTerminal reports whether s ends in sentence-final punctuation.
func hasStrongTerminal(s string) bool {
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(closers, r)
	})
	if s == "" {
		return false
	}
	rs := []rune(s)
	return strings.ContainsRune(strongTerminalPunct, rs[len(rs)-1])
}

// endsWithConnective reports whether s ends in a word that usually continues a sentence.
func endsWithConnective(s string) bool {
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if s == "" {
		return false
	}
	rs := []rune(s)
	if isCJK(rs[len(rs)-1]) {
		for _, list := range [][]string{connectivesZh, connectivesJa, connectivesKo} {
			for _, w := range list {
				if strings.HasSuffix(s, w) {
					return true
				}
			}
		}
		return false
	}
	fields := strings.Fields(s)
	last := strings.ToLower(fields[len(fields)-1])
	_, ok := connectivesEn[last]
	return ok
}

// foldRunes normalizes s for comparison: trimmed, case-folded, whitespace runs
// collapsed to one space (or dropped when keepSpace is false). The second
// return maps each folded rune to its rune index in the original string.
func foldRunes(s string, keepSpace bool) ([]rune, []int) {
	src := []rune(s)
	out := make([]rune, 0, len(src))
	idx := make([]int, 0, len(src))
	pendingSpace := false
	for i, r := range src {
		if unicode.IsSpace(r) {
			pendingSpace = len(out) > 0
			continue
		}
		if pendingSpace && keepSpace {
			out = append(out, ' ')
			idx = append(idx, i-1)
		}
		pendingSpace = false
		out = append(out, unicode.ToLower(r))
		idx = append(idx, i)
	}
	return out, idx
}

// collapseSpace trims s and collapses whitespace runs to a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// JoinText concatenates two text spans, inserting a space only between
// non-CJK edges.
func JoinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	ra, rb := []rune(a), []rune(b)
	last, first := ra[len(ra)-1], rb[0]
	if isCJK(last) || isCJK(first) || strings.ContainsRune(cjkPunct, last) || strings.ContainsRune(cjkPunct, first) {
		return a + b
	}
	return a + " " + b
}

// CharLen counts the non-space characters of s.
func CharLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

package aggregator

// ClassifyGap returns the silence between two utterances in ms, clamped to >= 0.
func ClassifyGap(prevEndMs, currStartMs int64) int64 {
	if gap := currStartMs - prevEndMs; gap > 0 {
		return gap
	}
	return 0
}

// IsLangSwitchConfident reports whether the current utterance is confidently in
// a different language than the previous one. All of the following must hold:
// the gap exceeds LangSwitchMinGapMs, both top-1 probabilities are stable, the
// top-1 languages differ, and the current top-1/top-2 margin is wide enough.
func IsLangSwitchConfident(prev, curr LangProbs, gapMs int64, t Tuning) bool {
	if gapMs <= t.LangSwitchMinGapMs {
		return false
	}
	if prev.Top1 == "" || curr.Top1 == "" {
		return false
	}
	if prev.P1 <= t.LangStableP || curr.P1 <= t.LangStableP {
		return false
	}
	if prev.Top1 == curr.Top1 {
		return false
	}
	return curr.P1-curr.P2 > t.LangSwitchMargin
}

// TextIncompletenessScore scores how likely curr is an unfinished fragment
// that belongs with prev. Higher means more likely to merge.
func TextIncompletenessScore(prev, curr Utterance, gapMs int64, t Tuning) int {
	score := 0

	if isCJKDominant(curr.Text) {
		n := cjkCount(curr.Text)
		switch {
		case n <= t.VeryShortCjkChars:
			score += t.WeightVeryShort
		case n <= t.ShortCjkChars:
			score += t.WeightShort
		}
	} else {
		n := wordCount(curr.Text)
		switch {
		case n <= t.VeryShortWords:
			score += t.WeightVeryShort
		case n <= t.ShortWords:
			score += t.WeightShort
		}
	}

	if gapMs <= t.ShortGapMs {
		score += t.WeightShortGap
	}
	if !hasStrongTerminal(curr.Text) {
		score += t.WeightNoTerminalPunct
	}
	if endsWithConnective(curr.Text) {
		score += t.WeightConnectiveTail
	}
	if curr.QualityScore != nil && *curr.QualityScore < t.QualityThreshold {
		score += t.WeightLowQuality
	}
	if !hasStrongTerminal(prev.Text) && gapMs <= t.SoftGapMs {
		score += t.WeightPrevOpen
	}
	return score
}

// Decision explains a DecideStreamAction outcome.
type Decision struct {
	Action     Action
	GapMs      int64
	Score      int
	LangSwitch bool
	Reason     string
}

// DecideStreamAction classifies curr as a continuation of prev or the start of
// a new segment. Rules are evaluated in order and the first match wins.
func DecideStreamAction(prev *Utterance, curr Utterance, t Tuning) Decision {
	if prev == nil {
		return Decision{Action: ActionNewStream, Reason: "no_previous"}
	}

	gap := ClassifyGap(prev.EndMs, curr.StartMs)
	d := Decision{Action: ActionNewStream, GapMs: gap}

	// A manual or pause boundary on either side always starts a fresh segment.
	if curr.Flags.IsManualCut || prev.Flags.Forced() {
		d.Reason = "forced_boundary"
		return d
	}
	if gap >= t.HardGapMs {
		d.Reason = "hard_gap"
		return d
	}
	if IsLangSwitchConfident(prev.Lang, curr.Lang, gap, t) {
		d.LangSwitch = true
		d.Reason = "lang_switch"
		return d
	}
	if gap <= t.StrongMergeMs {
		d.Action = ActionMerge
		d.Reason = "strong_merge"
		return d
	}

	d.Score = TextIncompletenessScore(*prev, curr, gap, t)
	if d.Score >= t.ScoreThreshold && gap <= t.SoftGapMs {
		d.Action = ActionMerge
		d.Reason = "incomplete_text"
		return d
	}
	d.Reason = "complete_text"
	return d
}

package stt

// differ converts cumulative recognizer hypotheses into incremental deltas.
// Vosk-style servers resend the whole partial utterance on every update, so
// the delta is the suffix beyond the previously seen partial. When a revised
// hypothesis no longer extends the previous one, the suffix past the longest
// common prefix is emitted so no recognized words are silently dropped.
type differ struct {
	lastPartial string
}

func (d *differ) onPartial(partial string) (string, bool) {
	delta := suffixBeyond(d.lastPartial, partial)
	if len(partial) >= len(d.lastPartial) {
		d.lastPartial = partial
	}
	if delta == "" {
		return "", false
	}
	return delta, true
}

func (d *differ) onFinal(text string) (string, bool) {
	delta := suffixBeyond(d.lastPartial, text)
	d.lastPartial = ""
	if delta == "" {
		return "", false
	}
	return delta, true
}

func suffixBeyond(previous string, current string) string {
	if current == "" {
		return ""
	}
	if previous == "" {
		return current
	}

	common := 0
	for common < len(previous) && common < len(current) && previous[common] == current[common] {
		common++
	}
	return current[common:]
}

package mediasession

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// partitionResults splits the results changed by event into the joined
// final text and the joined interim text.
func partitionResults(event TranscriptEvent) (final string, interim string) {
	start := event.ResultIndex
	if start < 0 {
		start = 0
	}

	var finals, interims []string
	for i := start; i < len(event.Results); i++ {
		text := strings.TrimSpace(event.Results[i].Text)
		if text == "" {
			continue
		}
		if event.Results[i].Final {
			finals = append(finals, text)
		} else {
			interims = append(interims, text)
		}
	}
	return strings.Join(finals, " "), strings.Join(interims, " ")
}

// appendTranscript appends final text to draft, inserting one space only
// when draft is non-empty and does not already end in whitespace.
func appendTranscript(draft, final string) string {
	if final == "" {
		return draft
	}
	if draft == "" {
		return final
	}
	if last, _ := utf8.DecodeLastRuneInString(draft); unicode.IsSpace(last) {
		return draft + final
	}
	return draft + " " + final
}

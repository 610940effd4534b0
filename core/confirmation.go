package guidance

import (
	"strings"
	"unicode"
)

type replyKind int

const (
	replyAmbiguous replyKind = iota
	replyAffirmative
	replyNegative
)

func (k replyKind) String() string {
	switch k {
	case replyAffirmative:
		return "affirmative"
	case replyNegative:
		return "negative"
	}
	return "ambiguous"
}

var (
	affirmativeKeywords = []string{"네", "예", "맞아", "맞아요", "응", "그래"}
	negativeKeywords    = []string{"아니", "아니요", "틀려", "틀렸어"}
)

// classifyReply is a plain substring test against the keyword sets.
// Affirmative wins when both sets match.
func classifyReply(transcript string) replyKind {
	normalized := normalizeTranscript(transcript)
	if containsAny(normalized, affirmativeKeywords) {
		return replyAffirmative
	}
	if containsAny(normalized, negativeKeywords) {
		return replyNegative
	}
	return replyAmbiguous
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// normalizeTranscript trims the transcript, drops punctuation and collapses
// runs of whitespace.
func normalizeTranscript(transcript string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, transcript)
	return strings.Join(strings.Fields(cleaned), " ")
}

package pipeline

import "strings"

type DetectResult struct {
	IsRoster bool
	Score    float64
	Reason   string
}

var detectKeywords = []string{"ask", "give", "roster", "bni", "member", "referral", "chapter"}

// DetectRoster scores an email on whether it carries a chapter ask/give
// roster worth importing.
func DetectRoster(subject, text string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		if _, err := KindFromName(name); err == nil {
			score += 0.25
			break
		}
	}

	if strings.Contains(text, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isRoster := score >= 0.45
	reason := "rules_negative"
	if isRoster {
		reason = "rules_positive"
	}

	return DetectResult{IsRoster: isRoster, Score: score, Reason: reason}
}

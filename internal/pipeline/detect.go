package pipeline

import (
	"regexp"
	"strings"
)

type DetectResult struct {
	IsInspection bool
	Score        float64
	Reason       string
}

const detectThreshold = 0.45

var detectKeywords = []string{"inspection", "shade", "delta", "roll", "qc", "verdict", "lab dip", "fabric"}

var reDecimal = regexp.MustCompile(`\d+[.,]\d+`)

// DetectInspectionReport scores a mail message on keywords, decimal readings,
// tabular attachments and HTML tables.
func DetectInspectionReport(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	hits := len(reDecimal.FindAllString(text, 3))
	if hits >= 2 {
		score += 0.2
	} else if hits == 1 {
		score += 0.1
	}

	for _, name := range attachmentNames {
		if isTabularAttachment(name) {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	ok := score >= detectThreshold
	reason := "rules_negative"
	if ok {
		reason = "rules_positive"
	}
	return DetectResult{IsInspection: ok, Score: score, Reason: reason}
}

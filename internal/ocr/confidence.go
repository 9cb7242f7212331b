package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b(20\d{2}[-./]\d{2}[-./]\d{2}|\d{2}[-./]\d{2}[-./]20\d{2})\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|rub)\b|руб|[$£€₽]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}([ ,]\d{3})*([.,]\d{2})\b|\b\d+[.,]\d{2}\b`)
	reVAT    = regexp.MustCompile(`\b(vat|tax)\b|ндс`)
)

// heuristicConfidence scores page text by how invoice-like it looks, in 0..1.
// It is logged per page to spot blank or garbled scans.
func heuristicConfidence(txt string) float32 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reVAT.MatchString(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Package signals derives question-framing adaptation flags from the intake
// profile. Detection is pure and order-independent: the same profile always
// yields the same signals.
package signals

import (
	"strings"

	"parley/internal/domain"
)

// Keyword and range tables. These are the documented detection rules; the
// orchestrator never branches on anything outside them.
var (
	technicalTitles = []string{
		"cto", "engineer", "developer", "architect", "devops",
		"it manager", "it director", "technical", "sre", "data scientist",
	}
	decisionMakerTitles = []string{
		"ceo", "founder", "co-founder", "owner", "president",
		"managing director", "partner", "cfo", "coo", "vp",
	}
	highBudgetBuckets = map[string]bool{
		"25k-50k":  true,
		"50k-100k": true,
		"100k+":    true,
	}
	smallCompanySizes = map[string]bool{
		"solo": true,
		"2-10": true,
	}
)

// Detect maps profile fields to adaptation booleans via the tables above.
func Detect(p domain.Profile) domain.DetectedSignals {
	role := strings.ToLower(strings.TrimSpace(p.Role))
	return domain.DetectedSignals{
		Technical:     containsAny(role, technicalTitles) || answersMentionTechnical(p.Answers),
		BudgetReady:   highBudgetBuckets[normalizeBucket(p.Budget)],
		DecisionMaker: containsAny(role, decisionMakerTitles) || smallCompanySizes[normalizeBucket(p.CompanySize)],
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func normalizeBucket(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// answersMentionTechnical catches technical respondents whose title hides it,
// e.g. "Operations" people who name their stack in the intake answers.
func answersMentionTechnical(answers map[string]string) bool {
	markers := []string{"api", "integration", "webhook", "sql", "self-hosted"}
	for _, v := range answers {
		lowered := strings.ToLower(v)
		for _, m := range markers {
			if strings.Contains(lowered, m) {
				return true
			}
		}
	}
	return false
}

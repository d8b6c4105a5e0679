package driver

import (
	"strings"

	"github.com/copytrade/fleet/internal/domain"
)

// Classifier maps a piece of page text (an error banner, a modal's
// message) to an ErrorKind. The default implementation is a plain
// substring table; the Supervisor may swap in a different Classifier
// per locale without changing any caller.
type Classifier interface {
	Classify(pageText string) domain.ErrorKind
}

// substringClassifier is the built-in default: first matching
// substring wins, checked in a fixed order so overlapping phrases
// (e.g. "rejected" appearing in an unrelated banner) resolve
// deterministically.
type substringClassifier struct {
	rules []classifierRule
}

type classifierRule struct {
	substr string
	kind   domain.ErrorKind
}

// DefaultClassifier returns the built-in substring-based Classifier.
func DefaultClassifier() Classifier {
	return substringClassifier{rules: []classifierRule{
		{"insufficient funds", domain.ErrInsufficientFunds},
		{"insufficient margin", domain.ErrInsufficientFunds},
		{"market is closed", domain.ErrMarketClosed},
		{"market closed", domain.ErrMarketClosed},
		{"connection lost", domain.ErrConnectionTimeout},
		{"connection timed out", domain.ErrConnectionTimeout},
		{"order rejected", domain.ErrOrderRejection},
		{"rejected", domain.ErrOrderRejection},
	}}
}

func (c substringClassifier) Classify(pageText string) domain.ErrorKind {
	lower := strings.ToLower(pageText)
	for _, r := range c.rules {
		if strings.Contains(lower, r.substr) {
			return r.kind
		}
	}
	return domain.ErrUnknown
}

// Package classify determines a coarse document type for routing and
// prompting. A smarter classifier is an external collaborator behind the
// Classifier interface.
package classify

import (
	"context"
	"strings"
)

// Known document types.
const (
	TypeInvoice  = "invoice"
	TypeReceipt  = "receipt"
	TypeBooking  = "booking"
	TypeContract = "contract"
	TypeUnknown  = "unknown"
)

// Classifier determines the document type from filename and extracted text.
type Classifier interface {
	Classify(ctx context.Context, filename, text string) (string, error)
}

// KeywordClassifier scores simple keyword hits in the text and falls back
// to filename hints.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var keywordTypes = []struct {
	docType  string
	keywords []string
}{
	{TypeInvoice, []string{"invoice", "amount due", "bill to", "invoice number"}},
	{TypeReceipt, []string{"receipt", "subtotal", "cash", "change due", "thank you for your purchase"}},
	{TypeBooking, []string{"booking", "reservation", "check-in", "check-out", "confirmation number", "itinerary"}},
	{TypeContract, []string{"agreement", "hereinafter", "party of the first part", "terms and conditions", "signature"}},
}

func (c *KeywordClassifier) Classify(_ context.Context, filename, text string) (string, error) {
	lowerText := strings.ToLower(text)
	lowerName := strings.ToLower(filename)

	best, bestScore := TypeUnknown, 0
	for _, kt := range keywordTypes {
		score := 0
		for _, kw := range kt.keywords {
			if strings.Contains(lowerText, kw) {
				score++
			}
		}
		if strings.Contains(lowerName, kt.docType) {
			score += 2
		}
		if score > bestScore {
			best, bestScore = kt.docType, score
		}
	}
	return best, nil
}

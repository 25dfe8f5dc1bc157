package codec

import (
	"fmt"
	"strings"

	"echoclicker/internal/models"
)

// Diagnostic reports a script line that Parse skipped.
type Diagnostic struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Reason)
}

type Diagnostics []Diagnostic

// Err folds the diagnostics into a single ErrMalformedScript, or nil.
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	msgs := make([]string, len(ds))
	for i, d := range ds {
		msgs[i] = d.Error()
	}
	return fmt.Errorf("%w: %s", models.ErrMalformedScript, strings.Join(msgs, "; "))
}

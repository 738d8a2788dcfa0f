package dedupe

import (
	"fmt"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// FilterMinimum keeps the entries found in at least minimum units. The input
// record is not modified.
func FilterMinimum(rec models.DuplicateRecord, minimum int) (models.DuplicateRecord, error) {
	if minimum < 1 {
		return nil, &models.ConfigError{Field: "minimum_duplicates", Reason: fmt.Sprintf("must be at least 1, got %d", minimum)}
	}
	out := make(models.DuplicateRecord, len(rec))
	for name, units := range rec {
		if len(units) >= minimum {
			out[name] = append([]string(nil), units...)
		}
	}
	return out, nil
}

// SharedOverlap returns the names in rec that also exist in the shared
// scope, sorted.
func SharedOverlap(shared []string, rec models.DuplicateRecord) []string {
	inShared := make(map[string]bool, len(shared))
	for _, n := range shared {
		inShared[n] = true
	}
	var out []string
	for _, name := range rec.Names() {
		if inShared[name] {
			out = append(out, name)
		}
	}
	return out
}

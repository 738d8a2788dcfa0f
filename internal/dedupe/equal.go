package dedupe

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// payloadOptions compare objects by payload only. Lists compare as sets and
// nil equals empty.
var payloadOptions = cmp.Options{
	cmpopts.IgnoreFields(models.Object{}, "OwningUnit", "OriginUnit"),
	cmpopts.SortSlices(func(a, b any) bool { return fmt.Sprint(a) < fmt.Sprint(b) }),
	cmpopts.EquateEmpty(),
}

// Diff reports the payload differences between a and b. The result is empty
// when they are equal.
func Diff(a, b models.Object) string {
	return cmp.Diff(a, b, payloadOptions)
}

// Equal reports whether a and b have identical payloads.
func Equal(a, b models.Object) bool {
	return cmp.Equal(a, b, payloadOptions)
}

package dedupe

import "github.com/rflorenc/pan-deduper/internal/models"

// SelectUnits returns the units to search: the allow-list when given,
// otherwise every known unit, minus the deny-list and every destination.
// The shared scope is never searched.
func SelectUnits(all []models.Unit, allow, deny, destinations []string) []string {
	candidates := allow
	if len(candidates) == 0 {
		candidates = models.UnitNames(all)
	}
	skip := map[string]bool{models.SharedUnit: true}
	for _, u := range deny {
		skip[u] = true
	}
	for _, u := range destinations {
		skip[u] = true
	}
	var out []string
	for _, u := range candidates {
		if !skip[u] {
			out = append(out, u)
			skip[u] = true
		}
	}
	return out
}

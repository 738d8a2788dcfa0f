package dedupe

import (
	"github.com/rflorenc/pan-deduper/internal/models"
)

// FindDuplicates intersects the name sets of every pair of units and records,
// for each shared name, every unit it appeared in. Overlaps chain across
// pairs, so names in A∩B and B∩C are recorded with {A, B, C}.
func FindDuplicates(units []UnitNames) models.DuplicateRecord {
	rec := models.DuplicateRecord{}
	sets := make([]map[string]bool, len(units))
	for i, u := range units {
		sets[i] = make(map[string]bool, len(u.Names))
		for _, n := range u.Names {
			sets[i][n] = true
		}
	}
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			if units[i].Unit == units[j].Unit {
				continue
			}
			for _, n := range units[i].Names {
				if sets[j][n] {
					rec.Add(n, units[i].Unit, units[j].Unit)
				}
			}
		}
	}
	return rec
}

// FindDuplicatesDeep works like FindDuplicates but only records same-named
// objects whose payloads are equal. Same-named objects that differ are
// returned as near-duplicates.
func FindDuplicatesDeep(units []UnitObjects) (models.DuplicateRecord, []models.NearDuplicate) {
	rec := models.DuplicateRecord{}
	var near []models.NearDuplicate

	index := make([]map[string]models.Object, len(units))
	for i, u := range units {
		index[i] = make(map[string]models.Object, len(u.Objects))
		for _, o := range u.Objects {
			index[i][o.Name] = o
		}
	}
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			if units[i].Unit == units[j].Unit {
				continue
			}
			for _, a := range units[i].Objects {
				b, ok := index[j][a.Name]
				if !ok {
					continue
				}
				if diff := Diff(a, b); diff != "" {
					near = append(near, models.NearDuplicate{
						Name:  a.Name,
						Kind:  a.Kind,
						Left:  a.Relocate(units[i].Unit),
						Right: b.Relocate(units[j].Unit),
						Diff:  diff,
					})
					continue
				}
				rec.Add(a.Name, units[i].Unit, units[j].Unit)
			}
		}
	}
	return rec, near
}

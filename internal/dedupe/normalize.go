package dedupe

import (
	"encoding/json"
	"errors"

	"github.com/rflorenc/pan-deduper/internal/models"
)

var errNoName = errors.New("object has no name")

// UnitObjects holds the objects of one kind read from one unit.
type UnitObjects struct {
	Unit    string
	Objects []models.Object
}

// UnitNames holds the object names of one kind defined in one unit.
type UnitNames struct {
	Unit  string
	Names []string
}

// Owned returns the objects actually defined in unit, dropping those
// inherited from an ancestor. In the shared scope every object is kept.
// A nameless object is a fatal *models.SourceDataError.
func Owned(unit string, objs []models.Object) ([]models.Object, error) {
	out := make([]models.Object, 0, len(objs))
	for _, o := range objs {
		if o.Name == "" {
			frag, _ := json.Marshal(o)
			return nil, &models.SourceDataError{Unit: unit, Kind: o.Kind, Fragment: string(frag), Err: errNoName}
		}
		if unit != models.SharedUnit && !o.Owned() {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Names returns the names of the objects defined in unit, in source order.
func Names(unit string, objs []models.Object) ([]string, error) {
	owned, err := Owned(unit, objs)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(owned))
	for i, o := range owned {
		names[i] = o.Name
	}
	return names, nil
}

// NamesOf projects full unit collections onto their names.
func NamesOf(units []UnitObjects) []UnitNames {
	out := make([]UnitNames, len(units))
	for i, u := range units {
		names := make([]string, len(u.Objects))
		for j, o := range u.Objects {
			names[j] = o.Name
		}
		out[i] = UnitNames{Unit: u.Unit, Names: names}
	}
	return out
}

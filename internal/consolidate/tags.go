package consolidate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// TagRef names a tag as used in one unit.
type TagRef struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// TagPlan lists the tags to clone into the destinations and the (unit, tag)
// pairs to delete afterwards.
type TagPlan struct {
	Creates []models.Object `json:"creates"`
	Deletes []TagRef        `json:"deletes"`
	Missing []TagRef        `json:"missing,omitempty"`
}

// CollectTagRefs returns the tags referenced by the duplicate objects, read
// from every unit each duplicate was found in. Pairs are unique and keep
// first-seen order.
func CollectTagRefs(kinds []models.Kind, dups map[models.Kind]models.DuplicateRecord, snap *dedupe.Snapshot) []TagRef {
	seen := map[TagRef]bool{}
	var refs []TagRef
	for _, kind := range kinds {
		rec := dups[kind]
		for _, name := range rec.Names() {
			for _, unit := range rec[name] {
				obj, ok := snap.Lookup(kind, unit, name)
				if !ok {
					continue
				}
				for _, tag := range obj.Tags {
					ref := TagRef{Name: tag, Unit: unit}
					if !seen[ref] {
						seen[ref] = true
						refs = append(refs, ref)
					}
				}
			}
		}
	}
	return refs
}

// TagResolver turns tag references into a TagPlan.
type TagResolver struct {
	Source   platform.Source
	Log      *zap.Logger
	Progress func(string)
}

// Resolve fetches each referenced tag from the first unit it was seen in.
// A tag that cannot be fetched there is reported and left alone: it is
// neither cloned nor deleted anywhere.
func (r *TagResolver) Resolve(ctx context.Context, refs []TagRef) (*TagPlan, error) {
	progress := r.Progress
	if progress == nil {
		progress = func(string) {}
	}
	plan := &TagPlan{}
	resolved := map[string]bool{}
	tried := map[string]bool{}

	for _, ref := range refs {
		if tried[ref.Name] {
			continue
		}
		tried[ref.Name] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tag, err := r.Source.FetchObject(ctx, models.KindTag, ref.Unit, ref.Name)
		if err != nil || tag == nil {
			msg := fmt.Sprintf("Error pulling tag %s from %s, must be complex hierarchy, please fix manually.", ref.Name, ref.Unit)
			progress("  WARN: " + msg)
			r.Log.Warn("tag not found in source unit", zap.String("tag", ref.Name), zap.String("unit", ref.Unit), zap.Error(err))
			plan.Missing = append(plan.Missing, ref)
			continue
		}
		resolved[ref.Name] = true
		plan.Creates = append(plan.Creates, *tag)
	}

	for _, ref := range refs {
		if resolved[ref.Name] {
			plan.Deletes = append(plan.Deletes, ref)
		}
	}
	return plan, nil
}

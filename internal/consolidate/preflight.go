package consolidate

import (
	"context"
	"fmt"

	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// Preflight examines each destination for every object the plan creates and
// classifies the action as "create", "skip_exists" or "conflict". It also
// warns about source units that sit below none of the destinations, since their
// rules would lose sight of the consolidated object.
func Preflight(ctx context.Context, plan *Plan, dst platform.Source, hierarchy models.Hierarchy, logger func(string)) (*models.ConsolidationPreview, error) {
	if logger == nil {
		logger = func(string) {}
	}
	preview := &models.ConsolidationPreview{
		Entries: make(map[models.Kind][]models.PreviewEntry),
	}

	var destinations []string
	seenDest := map[string]bool{}
	var checked models.Kind
	for _, step := range plan.Steps() {
		if step.Op != OpCreate || step.Unit == models.SharedUnit {
			continue
		}
		if !seenDest[step.Unit] {
			seenDest[step.Unit] = true
			destinations = append(destinations, step.Unit)
		}
		if err := ctx.Err(); err != nil {
			logger("Preflight cancelled by user")
			return nil, err
		}
		if step.Kind != checked {
			checked = step.Kind
			logger(fmt.Sprintf("Checking %s on destination...", step.Kind.Plural()))
		}

		entry := models.PreviewEntry{Name: step.Name, Kind: step.Kind, Destination: step.Unit, Action: models.ActionCreate}
		existing, err := dst.FetchObject(ctx, step.Kind, step.Unit, step.Name)
		switch {
		case err != nil:
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("Could not check %s '%s' in %s: %v", step.Kind, step.Name, step.Unit, err))
		case existing == nil:
		case dedupe.Equal(*existing, *step.Object):
			entry.Action = models.ActionExists
			logger(fmt.Sprintf("  %s: exists in %s", step.Name, step.Unit))
		default:
			entry.Action = models.ActionConflict
			entry.Diff = dedupe.Diff(*existing, *step.Object)
			logger(fmt.Sprintf("  %s: conflicts with existing object in %s", step.Name, step.Unit))
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("%s '%s' already exists in %s with a different definition; creating it will fail.", step.Kind, step.Name, step.Unit))
		}
		preview.Entries[step.Kind] = append(preview.Entries[step.Kind], entry)
	}

	if hierarchy.Known() {
		warned := map[string]bool{}
		for _, step := range plan.Steps() {
			if step.Op != OpDelete || step.Unit == models.SharedUnit || warned[step.Unit] {
				continue
			}
			below := false
			for _, d := range destinations {
				if hierarchy.IsAncestor(d, step.Unit) {
					below = true
					break
				}
			}
			if !below && len(destinations) > 0 {
				warned[step.Unit] = true
				preview.Warnings = append(preview.Warnings,
					fmt.Sprintf("Device group %s is not below any destination %v; objects removed from it will not be inherited.", step.Unit, destinations))
			}
		}
	}

	return preview, nil
}

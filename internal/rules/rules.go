// Package rules finds security rules that can be folded into an earlier rule
// of the same rulebase and renders the set commands that do it.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// Merge is a rule and the later rules whose sources it can absorb.
type Merge struct {
	Rule     models.SecurityRule   `json:"rule"`
	Absorbed []models.SecurityRule `json:"absorbed"`
}

// FindMerges scans rules in order. A locally owned rule absorbs every later
// locally owned rule with the same action, from-zones, destinations,
// services and applications, up to the first deny that follows a non-deny
// rule.
func FindMerges(rules []models.SecurityRule) []Merge {
	var merges []Merge
	for i, r1 := range rules {
		if r1.Inherited() {
			continue
		}
		var absorbed []models.SecurityRule
		for _, r2 := range rules[i:] {
			if r2.Name == r1.Name {
				continue
			}
			if r2.Action == "deny" && r1.Action != "deny" {
				break
			}
			if r2.Inherited() {
				continue
			}
			if mergeable(r1, r2) {
				absorbed = append(absorbed, r2)
			}
		}
		if len(absorbed) > 0 {
			merges = append(merges, Merge{Rule: r1, Absorbed: absorbed})
		}
	}
	return merges
}

func mergeable(a, b models.SecurityRule) bool {
	return a.Action == b.Action &&
		sameSet(a.Destinations, b.Destinations) &&
		sameSet(a.Services, b.Services) &&
		sameSet(a.Applications, b.Applications) &&
		sameSet(a.From, b.From)
}

func sameSet(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	other := make(map[string]bool, len(b))
	for _, v := range b {
		if !set[v] {
			return false
		}
		other[v] = true
	}
	return len(set) == len(other)
}

// Render turns merges into set and delete commands for one rulebase. A rule
// that was already absorbed neither absorbs others nor gets deleted twice.
// Each merged rule's commands end with a blank line.
func Render(unit, rulebase string, merges []Merge) []string {
	var out []string
	deleted := map[string]bool{}
	prefix := fmt.Sprintf("device-group %s %s security rules", unit, rulebase)
	for _, m := range merges {
		if deleted[m.Rule.Name] {
			continue
		}
		for _, add := range m.Absorbed {
			if deleted[add.Name] {
				continue
			}
			var sets, deletes []string
			for _, src := range add.Sources {
				if src == "any" {
					deletes = append(deletes, fmt.Sprintf("delete %s '%s' source", prefix, m.Rule.Name))
				}
				sets = append(sets, fmt.Sprintf("set %s '%s' source %s", prefix, m.Rule.Name, src))
			}
			deletes = append(deletes, fmt.Sprintf("delete %s '%s'", prefix, add.Name))
			deleted[add.Name] = true
			out = append(out, sets...)
			out = append(out, deletes...)
		}
		out = append(out, "")
	}
	return out
}

// Deduper fetches the rulebases of each device group and renders the
// commands that fold redundant rules together.
type Deduper struct {
	Source         platform.RuleSource
	MaxConcurrency int
	Log            *zap.Logger
	Progress       func(string)
}

// Run returns the command lines for each unit, pre-rulebase first, each
// rulebase introduced by a header line.
func (d *Deduper) Run(ctx context.Context, units []string) (map[string][]string, error) {
	progress := d.Progress
	if progress == nil {
		progress = func(string) {}
	}
	limit := d.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	type key struct{ unit, rulebase string }
	fetched := map[key][]models.SecurityRule{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, unit := range units {
		unit := unit
		for _, rb := range platform.Rulebases {
			rb := rb
			g.Go(func() error {
				rules, err := d.Source.FetchSecurityRules(gctx, unit, rb)
				if err != nil {
					return fmt.Errorf("fetching %s security rules from %s: %w", rb, unit, err)
				}
				mu.Lock()
				fetched[key{unit, rb}] = rules
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(units))
	sorted := append([]string(nil), units...)
	sort.Strings(sorted)
	for _, unit := range sorted {
		var lines []string
		for _, rb := range platform.Rulebases {
			progress(fmt.Sprintf("checking %s %s", unit, rb))
			merges := FindMerges(fetched[key{unit, rb}])
			if d.Log != nil {
				d.Log.Debug("rule merges", zap.String("unit", unit), zap.String("rulebase", rb), zap.Int("merges", len(merges)))
			}
			lines = append(lines, fmt.Sprintf("--------- %s ---------", strings.ToUpper(rb)))
			lines = append(lines, Render(unit, rb, merges)...)
		}
		out[unit] = lines
	}
	return out, nil
}

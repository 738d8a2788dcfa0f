package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/models"
)

// Op is a remote operation.
type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// Phase names, in execution order.
const (
	PhaseTagCreate     = "tag-create"
	PhaseTagDelete     = "tag-delete"
	PhaseObjectCreate  = "object-create"
	PhaseGroupCreate   = "group-create"
	PhaseGroupDelete   = "group-delete"
	PhaseObjectDelete  = "object-delete"
	PhaseSharedCleanup = "shared-cleanup"
)

// Step is a single create or delete of one object in one unit. Object is
// set for creates.
type Step struct {
	Op     Op             `json:"op"`
	Kind   models.Kind    `json:"kind"`
	Name   string         `json:"name"`
	Unit   string         `json:"unit"`
	Object *models.Object `json:"object,omitempty"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s '%s' in %s", s.Op, s.Kind, s.Name, s.Unit)
}

// Phase is a sequence of batches. Steps within a batch are independent and
// may run concurrently; batches run in order. A non-empty Checkpoint is a
// question the operator must confirm before the phase starts. Refresh, when
// set, replaces Batches once the checkpoint has been passed.
type Phase struct {
	Name       string   `json:"name"`
	Checkpoint string   `json:"checkpoint,omitempty"`
	Batches    [][]Step `json:"batches"`

	Refresh func(ctx context.Context) ([][]Step, error) `json:"-"`
}

// Plan is an ordered list of phases.
type Plan struct {
	Phases []Phase `json:"phases"`
}

// Steps returns every step in execution order.
func (p *Plan) Steps() []Step {
	var out []Step
	for _, ph := range p.Phases {
		for _, b := range ph.Batches {
			out = append(out, b...)
		}
	}
	return out
}

// Add appends a phase if it has any steps.
func (p *Plan) Add(ph Phase) {
	var batches [][]Step
	for _, b := range ph.Batches {
		if len(b) > 0 {
			batches = append(batches, b)
		}
	}
	if len(batches) == 0 {
		return
	}
	ph.Batches = batches
	p.Phases = append(p.Phases, ph)
}

// PlanInput carries everything the planner needs.
type PlanInput struct {
	Kinds        []models.Kind
	Duplicates   map[models.Kind]models.DuplicateRecord
	Snapshot     *dedupe.Snapshot
	Tags         *TagPlan
	Destinations []string
}

// BuildPlan orders the consolidation so that nothing is created before its
// dependencies or deleted while still referenced: tags first, leaf objects
// before groups, member groups before the groups that contain them, and
// deletes in the reverse order.
func BuildPlan(in PlanInput) (*Plan, error) {
	plan := &Plan{}
	isDest := map[string]bool{}
	for _, d := range in.Destinations {
		isDest[d] = true
	}

	if in.Tags != nil {
		var creates, deletes []Step
		for _, tag := range in.Tags.Creates {
			for _, dst := range in.Destinations {
				obj := tag.Relocate(dst)
				creates = append(creates, Step{Op: OpCreate, Kind: models.KindTag, Name: tag.Name, Unit: dst, Object: &obj})
			}
		}
		for _, ref := range in.Tags.Deletes {
			if !isDest[ref.Unit] {
				deletes = append(deletes, Step{Op: OpDelete, Kind: models.KindTag, Name: ref.Name, Unit: ref.Unit})
			}
		}
		plan.Add(Phase{Name: PhaseTagCreate, Batches: [][]Step{creates}})
		plan.Add(Phase{Name: PhaseTagDelete, Batches: [][]Step{deletes}})
	}

	var leafCreates, leafDeletes, groupCreates, groupDeletes []Step
	groupMembers := map[string][]string{}
	for _, kind := range in.Kinds {
		rec := in.Duplicates[kind]
		for _, name := range rec.Names() {
			units := rec[name]
			if len(units) == 0 {
				continue
			}
			src, ok := in.Snapshot.Lookup(kind, units[0], name)
			if !ok {
				return nil, &models.SourceDataError{Unit: units[0], Kind: kind, Fragment: name, Err: fmt.Errorf("duplicate object missing from fetched data")}
			}
			var creates, deletes []Step
			for _, dst := range in.Destinations {
				obj := src.Relocate(dst)
				creates = append(creates, Step{Op: OpCreate, Kind: kind, Name: name, Unit: dst, Object: &obj})
			}
			for _, u := range units {
				if !isDest[u] {
					deletes = append(deletes, Step{Op: OpDelete, Kind: kind, Name: name, Unit: u})
				}
			}
			if kind.IsGroup() {
				groupMembers[string(kind)+"/"+name] = src.Members()
				groupCreates = append(groupCreates, creates...)
				groupDeletes = append(groupDeletes, deletes...)
			} else {
				leafCreates = append(leafCreates, creates...)
				leafDeletes = append(leafDeletes, deletes...)
			}
		}
	}

	depth, err := groupDepths(groupMembers)
	if err != nil {
		return nil, err
	}
	createWaves := waves(groupCreates, depth)
	deleteWaves := waves(groupDeletes, depth)
	for i, j := 0, len(deleteWaves)-1; i < j; i, j = i+1, j-1 {
		deleteWaves[i], deleteWaves[j] = deleteWaves[j], deleteWaves[i]
	}

	plan.Add(Phase{Name: PhaseObjectCreate, Batches: [][]Step{leafCreates}})
	plan.Add(Phase{Name: PhaseGroupCreate, Batches: createWaves})
	plan.Add(Phase{Name: PhaseGroupDelete, Batches: deleteWaves})
	plan.Add(Phase{Name: PhaseObjectDelete, Batches: [][]Step{leafDeletes}})
	return plan, nil
}

// groupDepths assigns each consolidated group its nesting depth: a group
// whose members include other consolidated groups of the same kind sits
// one level above the deepest of them.
func groupDepths(members map[string][]string) (map[string]int, error) {
	depth := map[string]int{}
	visiting := map[string]bool{}
	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		if d, ok := depth[id]; ok {
			return d, nil
		}
		kind, name, _ := strings.Cut(id, "/")
		if visiting[id] {
			return 0, &models.SourceDataError{Kind: models.Kind(kind), Fragment: name, Err: fmt.Errorf("group membership cycle")}
		}
		visiting[id] = true
		d := 0
		for _, m := range members[id] {
			mid := kind + "/" + m
			if _, ok := members[mid]; !ok {
				continue
			}
			md, err := visit(mid)
			if err != nil {
				return 0, err
			}
			d = max(d, md+1)
		}
		visiting[id] = false
		depth[id] = d
		return d, nil
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := visit(id); err != nil {
			return nil, err
		}
	}
	return depth, nil
}

// waves splits steps into batches by group depth, shallowest first.
func waves(steps []Step, depth map[string]int) [][]Step {
	if len(steps) == 0 {
		return nil
	}
	maxDepth := 0
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	out := make([][]Step, maxDepth+1)
	for _, s := range steps {
		d := depth[string(s.Kind)+"/"+s.Name]
		out[d] = append(out[d], s)
	}
	return out
}

// SharedCleanupPhase deletes consolidated names from the shared scope:
// tags first, then groups, then leaf objects. The phase carries a
// checkpoint so it only runs after the operator agrees.
func SharedCleanupPhase(overlap map[models.Kind][]string) Phase {
	var tags, groups, leaves []Step
	kinds := make([]models.Kind, 0, len(overlap))
	for k := range overlap {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		for _, name := range overlap[kind] {
			s := Step{Op: OpDelete, Kind: kind, Name: name, Unit: models.SharedUnit}
			switch {
			case kind == models.KindTag:
				tags = append(tags, s)
			case kind.IsGroup():
				groups = append(groups, s)
			default:
				leaves = append(leaves, s)
			}
		}
	}
	n := len(tags) + len(groups) + len(leaves)
	return Phase{
		Name:       PhaseSharedCleanup,
		Checkpoint: fmt.Sprintf("Delete %d consolidated objects from shared?", n),
		Batches:    [][]Step{tags, groups, leaves},
	}
}

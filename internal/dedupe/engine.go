package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rflorenc/pan-deduper/internal/metrics"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// Options selects what a run searches and how.
type Options struct {
	Kinds             []models.Kind
	Units             []string
	Deep              bool
	MinimumDuplicates int
	MaxConcurrency    int
	IncludeShared     bool
}

// Snapshot holds every object fetched for a run, per kind, in unit order.
type Snapshot struct {
	Units  map[models.Kind][]UnitObjects
	Shared map[models.Kind][]models.Object

	mu    sync.Mutex
	index map[string]*models.Object
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Units:  make(map[models.Kind][]UnitObjects),
		Shared: make(map[models.Kind][]models.Object),
	}
}

// Lookup returns the object named name of kind in unit.
func (s *Snapshot) Lookup(kind models.Kind, unit, name string) (*models.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		s.index = make(map[string]*models.Object)
		for k, units := range s.Units {
			for _, u := range units {
				for i := range u.Objects {
					s.index[key(k, u.Unit, u.Objects[i].Name)] = &u.Objects[i]
				}
			}
		}
		for k, objs := range s.Shared {
			for i := range objs {
				s.index[key(k, models.SharedUnit, objs[i].Name)] = &objs[i]
			}
		}
	}
	o, ok := s.index[key(kind, unit, name)]
	return o, ok
}

// SharedNames returns the names of kind defined in the shared scope.
func (s *Snapshot) SharedNames(kind models.Kind) []string {
	names := make([]string, len(s.Shared[kind]))
	for i, o := range s.Shared[kind] {
		names[i] = o.Name
	}
	return names
}

func key(kind models.Kind, unit, name string) string {
	return string(kind) + "\x00" + unit + "\x00" + name
}

// Engine fetches objects and finds duplicates.
type Engine struct {
	source   platform.Source
	log      *zap.Logger
	progress func(string)
	metrics  *metrics.Recorder
}

// NewEngine creates an Engine. progress receives operator-facing lines and
// may be nil.
func NewEngine(source platform.Source, log *zap.Logger, progress func(string), rec *metrics.Recorder) *Engine {
	if progress == nil {
		progress = func(string) {}
	}
	return &Engine{source: source, log: log, progress: progress, metrics: rec}
}

// Collect fetches every (kind, unit) pair concurrently, bounded by
// MaxConcurrency, and returns once all fetches have joined. Any fetch error
// aborts the collection.
func (e *Engine) Collect(ctx context.Context, opts Options) (*Snapshot, error) {
	snap := newSnapshot()
	results := make(map[models.Kind][]UnitObjects, len(opts.Kinds))
	shared := make(map[models.Kind][]models.Object, len(opts.Kinds))
	for _, k := range opts.Kinds {
		results[k] = make([]UnitObjects, len(opts.Units))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}
	for _, kind := range opts.Kinds {
		kind := kind
		for i, unit := range opts.Units {
			i, unit := i, unit
			g.Go(func() error {
				objs, err := e.fetch(gctx, kind, unit)
				if err != nil {
					return err
				}
				results[kind][i] = UnitObjects{Unit: unit, Objects: objs}
				return nil
			})
		}
		if opts.IncludeShared {
			g.Go(func() error {
				objs, err := e.fetch(gctx, kind, models.SharedUnit)
				if err != nil {
					return err
				}
				mu.Lock()
				shared[kind] = objs
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Units = results
	snap.Shared = shared
	for _, k := range opts.Kinds {
		n := 0
		for _, u := range results[k] {
			n += len(u.Objects)
		}
		e.progress(fmt.Sprintf("  %s: %d objects across %d device groups", k.Plural(), n, len(opts.Units)))
	}
	return snap, nil
}

func (e *Engine) fetch(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error) {
	start := time.Now()
	objs, err := e.source.FetchObjects(ctx, kind, unit)
	e.metrics.ObserveFetch(string(kind), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", kind.Plural(), unit, err)
	}
	owned, err := Owned(unit, objs)
	if err != nil {
		return nil, err
	}
	e.log.Debug("fetched objects", zap.String("kind", string(kind)), zap.String("unit", unit),
		zap.Int("total", len(objs)), zap.Int("owned", len(owned)))
	return owned, nil
}

// Find runs the duplicate search over a snapshot and applies the minimum
// count filter.
func (e *Engine) Find(snap *Snapshot, opts Options) (*models.Findings, error) {
	findings := models.NewFindings()
	for _, kind := range opts.Kinds {
		units := snap.Units[kind]
		var (
			rec  models.DuplicateRecord
			near []models.NearDuplicate
		)
		if opts.Deep {
			rec, near = FindDuplicatesDeep(units)
		} else {
			rec = FindDuplicates(NamesOf(units))
		}
		filtered, err := FilterMinimum(rec, opts.MinimumDuplicates)
		if err != nil {
			return nil, err
		}
		findings.Duplicates[kind] = filtered
		if len(near) > 0 {
			findings.NearDuplicates[kind] = near
		}
		if opts.IncludeShared {
			if overlap := SharedOverlap(snap.SharedNames(kind), filtered); len(overlap) > 0 {
				findings.Shared[kind] = overlap
			}
		}
		e.metrics.SetFindings(string(kind), len(filtered), len(near))
		e.progress(fmt.Sprintf("  %s: %d duplicates (%d before minimum of %d)", kind.Plural(), len(filtered), len(rec), opts.MinimumDuplicates))
		if len(near) > 0 {
			e.progress(fmt.Sprintf("  %s: %d same-name objects differ", kind.Plural(), len(near)))
		}
	}
	return findings, nil
}

// Run collects objects and finds duplicates.
func (e *Engine) Run(ctx context.Context, opts Options) (*models.Findings, *Snapshot, error) {
	if opts.MinimumDuplicates < 1 {
		return nil, nil, &models.ConfigError{Field: "minimum_duplicates", Reason: "must be at least 1"}
	}
	e.progress("=== Fetching objects ===")
	snap, err := e.Collect(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	e.progress("=== Finding duplicates ===")
	findings, err := e.Find(snap, opts)
	if err != nil {
		return nil, nil, err
	}
	return findings, snap, nil
}

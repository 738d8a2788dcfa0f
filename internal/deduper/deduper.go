// Package deduper runs a complete duplicate search and consolidation.
package deduper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/config"
	"github.com/rflorenc/pan-deduper/internal/consolidate"
	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/metrics"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
	"github.com/rflorenc/pan-deduper/internal/render"
	"github.com/rflorenc/pan-deduper/internal/report"
	"github.com/rflorenc/pan-deduper/internal/rules"
)

// ErrDeclined is returned when the operator answers no to the settings
// confirmation.
var ErrDeclined = errors.New("run declined by operator")

// Connect opens the object source the settings select: a configuration
// export when XMLFile is set, otherwise a live Panorama.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (platform.Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.XMLFile != "" {
		data, err := afs.New().DownloadWithURL(ctx, cfg.XMLFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.XMLFile, err)
		}
		cf, err := platform.ParseConfigFile(data)
		if err != nil {
			return nil, err
		}
		return cf, nil
	}
	if cfg.Panorama.Ping {
		if err := platform.Reachable(cfg.Panorama.Host, 5*time.Second); err != nil {
			return nil, err
		}
	}
	conn := cfg.Connection()
	log.Debug("connecting to panorama", zap.String("host", conn.Host), zap.String("username", conn.Username),
		zap.String("password", conn.MaskedPassword()), zap.String("backend", conn.Backend))
	return platform.NewPanorama(ctx, conn, log)
}

// Runner wires one run together. Pusher may be nil unless pushing.
type Runner struct {
	Config   *config.Config
	Source   platform.Source
	Pusher   platform.Pusher
	Writer   *report.Writer
	Log      *zap.Logger
	Progress func(string)
	// Confirm asks the operator a yes/no question. Nil, or AssumeYes in the
	// settings, answers yes.
	Confirm func(question string) bool
	Metrics *metrics.Recorder
}

// Result is everything a run produced.
type Result struct {
	Units     []string                     `json:"units"`
	Findings  *models.Findings             `json:"findings"`
	Preview   *models.ConsolidationPreview `json:"preview,omitempty"`
	Plan      *consolidate.Plan            `json:"plan,omitempty"`
	Commands  []render.Command             `json:"commands,omitempty"`
	Report    *consolidate.Report          `json:"report,omitempty"`
	Artifacts []string                     `json:"artifacts,omitempty"`
}

func (r *Runner) logger() func(string) {
	if r.Progress == nil {
		return func(string) {}
	}
	return r.Progress
}

func (r *Runner) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Runner) confirm(q string) bool {
	if r.Config.AssumeYes || r.Confirm == nil {
		return true
	}
	return r.Confirm(q)
}

// Run searches for duplicates and, depending on the settings, reports them,
// writes the commands that consolidate them or pushes the consolidation.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	defer func() {
		status := "completed"
		switch {
		case errors.Is(err, context.Canceled):
			status = "cancelled"
		case err != nil:
			status = "failed"
		}
		r.Metrics.ObserveRun(status)
	}()

	cfg := r.Config
	logger := r.logger()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PushEnabled && r.Pusher == nil {
		return nil, &models.ConfigError{Field: "push_enabled", Reason: "the object source cannot apply changes"}
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return nil, err
	}

	all, err := r.Source.FetchUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching device groups: %w", err)
	}
	units := dedupe.SelectUnits(all, cfg.UnitAllowlist, cfg.UnitDenylist, cfg.DestinationUnits)
	res = &Result{Units: units}

	summary := cfg.Summary(units)
	r.log().Info("run settings", zap.Strings("units", units), zap.Strings("kinds", cfg.ObjectKinds),
		zap.Int("minimum", cfg.MinimumDuplicates), zap.Bool("push", cfg.PushEnabled), zap.Bool("emit", cfg.EmitCommands))
	logger(summary)
	if !r.confirm("DO THE ABOVE SETTINGS LOOK CORRECT? Ensure Panorama candidate config state is as desired as well! (y/n): ") {
		return res, ErrDeclined
	}

	consolidating := cfg.PushEnabled || cfg.EmitCommands
	engine := dedupe.NewEngine(r.Source, r.log(), logger, r.Metrics)
	findings, snap, err := engine.Run(ctx, dedupe.Options{
		Kinds:             kinds,
		Units:             units,
		Deep:              cfg.Deep,
		MinimumDuplicates: cfg.MinimumDuplicates,
		MaxConcurrency:    cfg.MaxConcurrency,
		IncludeShared:     consolidating && cfg.DeleteSharedAfter,
	})
	if err != nil {
		return res, err
	}
	res.Findings = findings

	if r.Writer != nil {
		path, err := r.Writer.WriteDuplicates(ctx, findings)
		if err != nil {
			return res, err
		}
		res.Artifacts = append(res.Artifacts, path)
		logger(fmt.Sprintf("Duplicates saved to %s", path))
		if cfg.Deep {
			path, err := r.Writer.WriteNearDuplicates(ctx, findings)
			if err != nil {
				return res, err
			}
			if path != "" {
				res.Artifacts = append(res.Artifacts, path)
				logger(fmt.Sprintf("Almost/maybe duplicates found with deep check are saved in %s", path))
			}
		}
	}

	if !consolidating {
		return res, nil
	}
	if findings.Total() == 0 {
		logger("No duplicates found, nothing to consolidate")
		return res, nil
	}
	if ctx.Err() != nil {
		logger("Run cancelled by user")
		return res, ctx.Err()
	}

	plan, err := r.plan(ctx, kinds, findings, snap)
	if err != nil {
		return res, err
	}
	res.Plan = plan

	if cfg.EmitCommands {
		cmds, err := render.Plan(plan)
		if err != nil {
			return res, err
		}
		res.Commands = cmds
		if r.Writer != nil {
			paths, err := r.Writer.WriteCommands(ctx, cmds)
			if err != nil {
				return res, err
			}
			res.Artifacts = append(res.Artifacts, paths...)
			logger(fmt.Sprintf("Set commands saved to %d files", len(paths)))
		}
		return res, nil
	}

	all = append(all, models.Unit{Name: models.SharedUnit})
	preview, err := consolidate.Preflight(ctx, plan, r.Source, models.NewHierarchy(all), logger)
	if err != nil {
		return res, err
	}
	res.Preview = preview
	for _, w := range preview.Warnings {
		logger("  WARN: " + w)
	}

	if !r.confirm(fmt.Sprintf("Ready to push %d operations to Panorama...continue? (y/n): ", len(plan.Steps()))) {
		logger("Push skipped by operator")
		return res, nil
	}
	ex := &consolidate.Executor{
		Pusher:         r.Pusher,
		Source:         r.Source,
		MaxConcurrency: cfg.MaxConcurrency,
		GuardDeletes:   cfg.GuardDeletes,
		Confirm:        r.confirm,
		Log:            r.log(),
		Progress:       logger,
		Metrics:        r.Metrics,
	}
	rep, err := ex.Execute(ctx, plan)
	res.Report = rep
	if err != nil {
		return res, err
	}
	if n := len(rep.Failed()); n > 0 {
		r.log().Warn("consolidation finished with failures", zap.Int("failed", n))
	}
	return res, nil
}

// plan resolves tags and orders the consolidation, adding a shared cleanup
// phase when enabled.
func (r *Runner) plan(ctx context.Context, kinds []models.Kind, findings *models.Findings, snap *dedupe.Snapshot) (*consolidate.Plan, error) {
	cfg := r.Config
	logger := r.logger()

	logger("=== Checking for tags to move ===")
	refs := consolidate.CollectTagRefs(kinds, findings.Duplicates, snap)
	resolver := &consolidate.TagResolver{Source: r.Source, Log: r.log(), Progress: logger}
	tags, err := resolver.Resolve(ctx, refs)
	if err != nil {
		return nil, err
	}

	plan, err := consolidate.BuildPlan(consolidate.PlanInput{
		Kinds:        kinds,
		Duplicates:   findings.Duplicates,
		Snapshot:     snap,
		Tags:         tags,
		Destinations: cfg.DestinationUnits,
	})
	if err != nil {
		return nil, err
	}

	if !cfg.DeleteSharedAfter {
		return plan, nil
	}
	if cfg.EmitCommands && !r.confirm("Create 'shared' delete commands also? (y/n): ") {
		logger("Skipping shared delete commands")
		return plan, nil
	}
	overlap, err := r.sharedOverlap(ctx, kinds, findings, tags)
	if err != nil {
		return nil, err
	}
	cleanup := consolidate.SharedCleanupPhase(overlap)
	// shared may have changed while the primary phases ran
	cleanup.Refresh = func(ctx context.Context) ([][]consolidate.Step, error) {
		overlap, err := r.sharedOverlap(ctx, kinds, findings, tags)
		if err != nil {
			return nil, err
		}
		return consolidate.SharedCleanupPhase(overlap).Batches, nil
	}
	plan.Add(cleanup)
	return plan, nil
}

// sharedOverlap fetches the shared scope and returns the consolidated names
// that are also defined there, tags included.
func (r *Runner) sharedOverlap(ctx context.Context, kinds []models.Kind, findings *models.Findings, tags *consolidate.TagPlan) (map[models.Kind][]string, error) {
	consolidated := map[models.Kind]models.DuplicateRecord{}
	for _, k := range kinds {
		if len(findings.Duplicates[k]) > 0 {
			consolidated[k] = findings.Duplicates[k]
		}
	}
	if tags != nil && len(tags.Creates) > 0 {
		rec := models.DuplicateRecord{}
		for _, t := range tags.Creates {
			rec[t.Name] = nil
		}
		consolidated[models.KindTag] = rec
	}

	overlap := map[models.Kind][]string{}
	for k, rec := range consolidated {
		objs, err := r.Source.FetchObjects(ctx, k, models.SharedUnit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s from shared: %w", k.Plural(), err)
		}
		names := make([]string, len(objs))
		for i, o := range objs {
			names[i] = o.Name
		}
		if found := dedupe.SharedOverlap(names, rec); len(found) > 0 {
			overlap[k] = found
		}
	}
	return overlap, nil
}

// RunRules renders the security rule merges for the selected device groups
// and writes one command file per device group.
func (r *Runner) RunRules(ctx context.Context, src platform.RuleSource) (map[string][]string, error) {
	cfg := r.Config
	all, err := r.Source.FetchUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching device groups: %w", err)
	}
	units := dedupe.SelectUnits(all, cfg.UnitAllowlist, cfg.UnitDenylist, nil)
	d := &rules.Deduper{Source: src, MaxConcurrency: cfg.MaxConcurrency, Log: r.log(), Progress: r.logger()}
	out, err := d.Run(ctx, units)
	if err != nil {
		return nil, err
	}
	if r.Writer != nil {
		if _, err := r.Writer.WriteRuleCommands(ctx, units, out); err != nil {
			return out, err
		}
		r.logger()("Done! Output of each device group at: set-commands-sec_rules-<groupname>.txt")
	}
	return out, nil
}

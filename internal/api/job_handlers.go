package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/config"
	"github.com/rflorenc/pan-deduper/internal/deduper"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
	"github.com/rflorenc/pan-deduper/internal/report"
)

// Run modes.
const (
	ModeReport = "report"
	ModeEmit   = "emit"
	ModePush   = "push"
	ModeRules  = "rules"
)

// RunRequest overrides the base settings for one run. Unset fields keep
// the server's values.
type RunRequest struct {
	Mode              string   `json:"mode"`
	MinimumDuplicates *int     `json:"minimum_duplicates,omitempty"`
	ObjectKinds       []string `json:"object_kinds,omitempty"`
	DestinationUnits  []string `json:"destination_units,omitempty"`
	UnitAllowlist     []string `json:"unit_allowlist,omitempty"`
	UnitDenylist      []string `json:"unit_denylist,omitempty"`
	Deep              *bool    `json:"deep,omitempty"`
	DeleteSharedAfter *bool    `json:"delete_shared_after,omitempty"`
	GuardDeletes      *bool    `json:"guard_deletes,omitempty"`
}

// apply returns a copy of base with the request's overrides. Serve mode
// never prompts, so every confirmation is answered yes.
func (req RunRequest) apply(base *config.Config) (*config.Config, error) {
	c := *base
	c.PushEnabled, c.EmitCommands = false, false
	switch req.Mode {
	case ModeReport, ModeRules, "":
	case ModeEmit:
		c.EmitCommands = true
	case ModePush:
		c.PushEnabled = true
	default:
		return nil, &models.ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", req.Mode)}
	}
	if req.MinimumDuplicates != nil {
		c.MinimumDuplicates = *req.MinimumDuplicates
	}
	if req.ObjectKinds != nil {
		c.ObjectKinds = req.ObjectKinds
	}
	if req.DestinationUnits != nil {
		c.DestinationUnits = req.DestinationUnits
	}
	if req.UnitAllowlist != nil {
		c.UnitAllowlist = req.UnitAllowlist
	}
	if req.UnitDenylist != nil {
		c.UnitDenylist = req.UnitDenylist
	}
	if req.Deep != nil {
		c.Deep = *req.Deep
	}
	if req.DeleteSharedAfter != nil {
		c.DeleteSharedAfter = *req.DeleteSharedAfter
	}
	if req.GuardDeletes != nil {
		c.GuardDeletes = *req.GuardDeletes
	}
	c.AssumeYes = true
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// StartRun starts an async deduper run.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	cfg, err := req.apply(s.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobType := "dedupe"
	if req.Mode == ModeRules {
		jobType = "rules"
	}
	job := s.Jobs.Create(jobType)
	ctx, cancel := context.WithCancel(context.Background())
	job.SetCancel(cancel)

	go func() {
		defer cancel()
		result, err := s.execute(ctx, cfg, req.Mode, job)
		switch {
		case errors.Is(err, context.Canceled):
			job.AppendLog("CANCELLED: run stopped by user")
		case err != nil:
			job.AppendLog("ERROR: " + err.Error())
			job.Fail(err.Error())
		default:
			job.Complete(result)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": job.ID})
}

func (s *Server) execute(ctx context.Context, cfg *config.Config, mode string, job *models.Job) (any, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run_id", job.ID))

	src, err := s.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	runner := &deduper.Runner{
		Config:   cfg,
		Source:   src,
		Writer:   report.NewWriter(cfg.OutputDir),
		Log:      log,
		Progress: job.AppendLog,
		Metrics:  s.Metrics,
	}
	if p, ok := src.(platform.Pusher); ok {
		runner.Pusher = p
	}

	if mode == ModeRules {
		rs, ok := src.(platform.RuleSource)
		if !ok {
			return nil, &models.ConfigError{Field: "mode", Reason: "the object source has no security rules"}
		}
		return runner.RunRules(ctx, rs)
	}
	return runner.Run(ctx)
}

func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	jobs := s.Jobs.List()
	views := make([]models.JobView, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	job := s.Jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

// GetRunResult returns the findings, plan, commands and report of a
// completed run.
func (s *Server) GetRunResult(w http.ResponseWriter, r *http.Request) {
	job := s.Jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	status, errMsg := job.State()
	switch status {
	case models.JobRunning:
		writeError(w, http.StatusConflict, "run is still in progress")
	case models.JobCompleted:
		writeJSON(w, http.StatusOK, job.Result())
	default:
		writeError(w, http.StatusConflict, fmt.Sprintf("run %s: %s", status, errMsg))
	}
}

// CancelRun cancels a running run.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	job := s.Jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if !job.Cancel() {
		writeError(w, http.StatusConflict, "run is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.JobCancelled})
}

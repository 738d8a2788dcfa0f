package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// Source retrieves policy objects from Panorama or from an exported
// configuration. Passing models.SharedUnit as unit addresses the shared scope.
type Source interface {
	// FetchUnits returns every device group with its parent, if known.
	FetchUnits(ctx context.Context) ([]models.Unit, error)

	// FetchObjects returns all objects of a kind visible from unit.
	FetchObjects(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error)

	// FetchObject returns a single object, or nil if it does not exist in unit.
	FetchObject(ctx context.Context, kind models.Kind, unit, name string) (*models.Object, error)
}

// Pusher applies consolidation steps to the management platform.
type Pusher interface {
	CreateObject(ctx context.Context, obj models.Object, unit string) Result
	DeleteObject(ctx context.Context, kind models.Kind, name, unit string) Result
}

// RuleSource retrieves security rules for a device group rulebase
// ("pre-rulebase" or "post-rulebase").
type RuleSource interface {
	FetchSecurityRules(ctx context.Context, unit, rulebase string) ([]models.SecurityRule, error)
}

// Panorama is a live management endpoint.
type Panorama interface {
	Source
	Pusher
	RuleSource
}

// Result is the outcome of a single remote create or delete.
type Result struct {
	OK            bool   `json:"ok"`
	AlreadyExists bool   `json:"already_exists,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Err converts a failed result into a *models.StepError.
func (r Result) Err(op string, kind models.Kind, name, unit string) error {
	if r.OK {
		return nil
	}
	return &models.StepError{Op: op, Kind: kind, Name: name, Unit: unit, Code: r.Code, Message: r.Message}
}

// Rulebases are the security rulebases of a device group.
var Rulebases = []string{"pre-rulebase", "post-rulebase"}

// NewPanorama connects to Panorama using the backend the connection selects.
func NewPanorama(ctx context.Context, conn *models.Connection, log *zap.Logger) (Panorama, error) {
	switch conn.Backend {
	case models.BackendXMLAPI:
		x, err := NewXMLAPI(conn, log)
		if err != nil {
			return nil, err
		}
		return x, nil
	case models.BackendREST, "":
		r := NewREST(conn, log)
		if err := r.Login(ctx); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, &models.ConfigError{Field: "panorama.backend", Reason: fmt.Sprintf("unknown backend %q", conn.Backend)}
	}
}

// Package events publishes forager lifecycle events.
package events

import (
	"context"
	"errors"
	"time"

	"sandwich/internal/domain"
)

type Type string

const (
	ArtifactAccepted Type = "artifact.accepted"
	AttemptLogged    Type = "attempt.logged"
	RunStarted       Type = "run.started"
	RunFinished      Type = "run.finished"
)

// Event is the envelope of every published message.
type Event struct {
	Type  Type      `json:"type"`
	Time  time.Time `json:"time"`
	RunID string    `json:"run_id"`
	Data  any       `json:"data,omitempty"`
}

type ArtifactData struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StructuralType string  `json:"structural_type"`
	BoundA         string  `json:"bound_a"`
	BoundB         string  `json:"bound_b"`
	Bounded        string  `json:"bounded"`
	Aggregate      float64 `json:"aggregate"`
	Relations      int     `json:"relations"`
}

type AttemptData struct {
	Cycle        int                 `json:"cycle"`
	Outcome      domain.Outcome      `json:"outcome"`
	Rationale    string              `json:"rationale,omitempty"`
	ArtifactID   string              `json:"artifact_id,omitempty"`
	Collaborator domain.Collaborator `json:"collaborator,omitempty"`
	Source       string              `json:"source,omitempty"`
	Aggregate    *float64            `json:"aggregate,omitempty"`
}

type RunData struct {
	Reason   string                 `json:"reason,omitempty"`
	Cycles   int                    `json:"cycles"`
	Accepted int                    `json:"accepted"`
	Outcomes map[domain.Outcome]int `json:"outcomes,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Publisher delivers events. Delivery failures never affect the pipeline.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Fanout publishes to several publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sandwich/internal/domain"
	"sandwich/internal/events"
	"sandwich/internal/metrics"
)

// Termination is the single reason a run ended.
type Termination string

const (
	PatienceExhausted Termination = "patience_exhausted"
	MaxArtifacts      Termination = "max_artifacts"
	MaxDuration       Termination = "max_duration"
	Cancelled         Termination = "cancelled"
	SourceExhausted   Termination = "source_exhausted"
	UpstreamFailure   Termination = "upstream_failure"
	Fatal             Termination = "fatal"
)

type StateKind int

const (
	Running StateKind = iota
	Terminated
)

// State is the patience state machine of a run.
type State struct {
	Kind     StateKind
	Patience int
	Reason   Termination
}

// After applies one cycle outcome: an accepted artifact restores patience
// to max, anything else costs one unit. A terminated state never changes.
func (s State) After(o domain.Outcome, max int) State {
	if s.Kind == Terminated {
		return s
	}
	if o == domain.OutcomeAccepted {
		s.Patience = max
	} else {
		s.Patience--
	}
	if s.Patience <= 0 {
		s.Patience = 0
		return s.Terminate(PatienceExhausted)
	}
	return s
}

// Terminate ends a running state with reason r.
func (s State) Terminate(r Termination) State {
	if s.Kind == Terminated && s.Reason != PatienceExhausted {
		return s
	}
	s.Kind, s.Reason = Terminated, r
	return s
}

// Limits bound a run. Zero MaxArtifacts and MaxDuration mean unlimited.
type Limits struct {
	Patience               int
	MaxArtifacts           int
	MaxDuration            time.Duration
	MaxConsecutiveFailures int
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	Started  time.Time
	Ended    time.Time
	Cycles   int
	Accepted int
	Outcomes map[domain.Outcome]int
	Reason   Termination
	Patience int
	Err      error
}

// Cycler runs one pipeline cycle.
type Cycler interface {
	Cycle(ctx context.Context) CycleResult
}

// AttemptStore persists the audit trail of a run.
type AttemptStore interface {
	AppendAttempt(ctx context.Context, entry domain.AttemptLog) error
	CountArtifacts(ctx context.Context) (int, error)
}

type Forager struct {
	pipeline  Cycler
	store     AttemptStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *logrus.Logger
	now       func() time.Time
}

func NewForager(p Cycler, store AttemptStore, pub events.Publisher, m *metrics.Metrics, log *logrus.Logger) *Forager {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Forager{pipeline: p, store: store, publisher: pub, metrics: m, log: log, now: time.Now}
}

// Run forages until one termination condition holds. Cancellation of ctx is
// observed between cycles only; a cycle in flight always completes and is
// logged. The returned error is the fatal error, if any.
func (f *Forager) Run(ctx context.Context, limits Limits) (Report, error) {
	if limits.Patience < 1 {
		limits.Patience = 1
	}
	if limits.MaxConsecutiveFailures < 1 {
		limits.MaxConsecutiveFailures = 3
	}
	rep := Report{
		RunID:    uuid.NewString(),
		Started:  f.now(),
		Outcomes: map[domain.Outcome]int{},
	}
	log := f.log.WithField("run_id", rep.RunID)
	work := context.WithoutCancel(ctx)

	corpusSize, err := f.store.CountArtifacts(work)
	if err != nil {
		return f.finish(work, rep, State{Kind: Terminated, Reason: Fatal}, err)
	}
	f.metrics.SetCorpusSize(corpusSize)
	f.publish(work, rep.RunID, events.RunStarted, nil)
	log.WithFields(logrus.Fields{"patience": limits.Patience, "corpus": corpusSize}).Info("run started")

	state := State{Kind: Running, Patience: limits.Patience}
	var lastFailed domain.Collaborator
	failures := 0

	for state.Kind == Running {
		if ctx.Err() != nil {
			state = state.Terminate(Cancelled)
			break
		}
		if limits.MaxDuration > 0 && f.now().Sub(rep.Started) >= limits.MaxDuration {
			state = state.Terminate(MaxDuration)
			break
		}
		f.metrics.SetPatience(state.Patience)

		cycle := rep.Cycles + 1
		res := f.pipeline.Cycle(work)
		rep.Cycles = cycle
		clog := log.WithFields(logrus.Fields{"cycle": cycle, "outcome": res.Outcome})
		if res.Err != nil {
			clog.WithError(res.Err).Error("fatal cycle failure")
			err := res.Err
			entry := fatalAttempt(rep.RunID, cycle, f.now(), res)
			if aerr := f.store.AppendAttempt(work, entry); aerr != nil {
				clog.WithError(aerr).Error("attempt log failed")
				err = errors.Join(res.Err, aerr)
			}
			f.metrics.ObserveCycle(entry.Outcome, nil)
			rep.Outcomes[entry.Outcome]++
			return f.finish(work, rep, state.Terminate(Fatal), err)
		}

		entry := domain.AttemptLog{
			ID:           uuid.NewString(),
			RunID:        rep.RunID,
			Cycle:        cycle,
			Timestamp:    f.now(),
			Outcome:      res.Outcome,
			Rationale:    res.Rationale,
			Provenance:   res.Provenance,
			Collaborator: res.Collaborator,
			Aggregate:    res.Aggregate,
			Scores:       res.Scores,
		}
		if res.Artifact != nil {
			entry.ArtifactID = res.Artifact.ID
		}
		if err := f.store.AppendAttempt(work, entry); err != nil {
			clog.WithError(err).Error("attempt log failed")
			return f.finish(work, rep, state.Terminate(Fatal), err)
		}
		f.publish(work, rep.RunID, events.AttemptLogged, events.AttemptData{
			Cycle:        cycle,
			Outcome:      res.Outcome,
			Rationale:    res.Rationale,
			ArtifactID:   entry.ArtifactID,
			Collaborator: res.Collaborator,
			Source:       res.Provenance.SourceName,
			Aggregate:    res.Aggregate,
		})
		f.metrics.ObserveCycle(res.Outcome, res.Aggregate)
		rep.Outcomes[res.Outcome]++

		var reason Termination
		switch res.Outcome {
		case domain.OutcomeAccepted:
			rep.Accepted++
			corpusSize++
			f.metrics.SetCorpusSize(corpusSize)
			a := res.Artifact
			f.publish(work, rep.RunID, events.ArtifactAccepted, events.ArtifactData{
				ID:             a.ID,
				Name:           a.Name,
				StructuralType: a.StructuralType,
				BoundA:         a.BoundA.Text,
				BoundB:         a.BoundB.Text,
				Bounded:        a.Bounded.Text,
				Aggregate:      a.Aggregate,
				Relations:      res.Relations,
			})
			clog.WithFields(logrus.Fields{"artifact_id": a.ID, "name": a.Name, "aggregate": a.Aggregate}).Info("artifact accepted")
			failures, lastFailed = 0, ""
			if limits.MaxArtifacts > 0 && rep.Accepted >= limits.MaxArtifacts {
				reason = MaxArtifacts
			}
		case domain.OutcomeUpstreamError:
			if res.Collaborator == lastFailed {
				failures++
			} else {
				failures, lastFailed = 1, res.Collaborator
			}
			clog.WithFields(logrus.Fields{"collaborator": res.Collaborator, "failures": failures}).Warn(res.Rationale)
			if failures >= limits.MaxConsecutiveFailures {
				reason = UpstreamFailure
			}
		default:
			failures, lastFailed = 0, ""
			clog.Debug(res.Rationale)
		}
		if res.Exhausted && reason == "" {
			reason = SourceExhausted
		}

		state = state.After(res.Outcome, limits.Patience)
		if reason != "" {
			state = state.Terminate(reason)
		}
	}
	return f.finish(work, rep, state, nil)
}

// fatalAttempt records the cycle that ended a run. The cycle never produced
// a stored artifact, so it is logged as an upstream error of its
// collaborator, the repository unless the cycle named another.
func fatalAttempt(runID string, cycle int, now time.Time, res CycleResult) domain.AttemptLog {
	collab := res.Collaborator
	if collab == "" {
		collab = domain.CollaboratorRepository
	}
	return domain.AttemptLog{
		ID:           uuid.NewString(),
		RunID:        runID,
		Cycle:        cycle,
		Timestamp:    now,
		Outcome:      domain.OutcomeUpstreamError,
		Rationale:    res.Err.Error(),
		Provenance:   res.Provenance,
		Collaborator: collab,
	}
}

func (f *Forager) finish(ctx context.Context, rep Report, state State, err error) (Report, error) {
	rep.Ended = f.now()
	rep.Reason = state.Reason
	rep.Patience = state.Patience
	rep.Err = err
	f.metrics.ObserveRun(string(rep.Reason))
	data := events.RunData{
		Reason:   string(rep.Reason),
		Cycles:   rep.Cycles,
		Accepted: rep.Accepted,
		Outcomes: rep.Outcomes,
	}
	if err != nil {
		data.Error = err.Error()
	}
	f.publish(ctx, rep.RunID, events.RunFinished, data)
	entry := f.log.WithFields(logrus.Fields{
		"run_id":   rep.RunID,
		"reason":   rep.Reason,
		"cycles":   rep.Cycles,
		"accepted": rep.Accepted,
		"elapsed":  rep.Ended.Sub(rep.Started).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Error("run failed")
		return rep, err
	}
	entry.Info("run finished")
	return rep, nil
}

func (f *Forager) publish(ctx context.Context, runID string, t events.Type, data any) {
	err := f.publisher.Publish(ctx, events.Event{Type: t, Time: f.now(), RunID: runID, Data: data})
	if err != nil && !errors.Is(err, context.Canceled) {
		f.log.WithError(err).WithField("event", t).Warn("publish event")
	}
}

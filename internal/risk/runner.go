package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/proptor/proptor/internal/metrics"
	"github.com/proptor/proptor/internal/traces"
)

// Runner executes the bulk analysis pass: every active contact is scored
// through the calculator, one at a time, with a fixed pause between calls so
// the calculator service is never hammered.
//
// One pass per user at a time. A second Run while one is in flight returns
// ErrRunInProgress.
type Runner struct {
	service  *Service
	calc     Calculator
	contacts ContactSource
	notifier Notifier // optional
	pace     time.Duration

	mu     sync.Mutex
	states map[string]RunState // userID -> state of last/current run
}

// NewRunner creates a bulk analysis runner. A non-positive pace falls back
// to the default.
func NewRunner(service *Service, calc Calculator, contacts ContactSource, pace time.Duration) *Runner {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Runner{
		service:  service,
		calc:     calc,
		contacts: contacts,
		pace:     pace,
		states:   make(map[string]RunState),
	}
}

// WithNotifier attaches a notification channel for run outcomes.
func (r *Runner) WithNotifier(n Notifier) *Runner {
	r.notifier = n
	return r
}

// State reports the lifecycle state of the user's last or current run.
func (r *Runner) State(userID string) RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[userID]; ok {
		return s
	}
	return RunStateIdle
}

func (r *Runner) begin(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states[userID] == RunStateRunning {
		return ErrRunInProgress
	}
	r.states[userID] = RunStateRunning
	return nil
}

func (r *Runner) finish(userID string, state RunState) {
	r.mu.Lock()
	r.states[userID] = state
	r.mu.Unlock()
}

// Run scores all of the user's active contacts sequentially and returns the
// pass summary. Individual contact failures are contained: the contact is
// skipped and the pass continues. Only a failure to list the contacts at all
// aborts the pass.
func (r *Runner) Run(ctx context.Context, userID string) (*RunSummary, error) {
	if err := r.begin(userID); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "risk.run", traces.UserID(userID))
	defer span.End()

	summary := &RunSummary{StartedAt: time.Now()}

	refs, err := r.contacts.ActiveContacts(ctx, userID)
	if err != nil {
		r.finish(userID, RunStateError)
		metrics.RiskRunsTotal.WithLabelValues("error").Inc()
		log.Printf("CRITICAL: risk run for %s could not list contacts: %v", userID, err)
		r.notifyFailure(ctx, userID, "Risk analysis could not start: contact list unavailable.")
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	summary.Total = len(refs)

	for i, ref := range refs {
		if i > 0 {
			select {
			case <-time.After(r.pace):
			case <-ctx.Done():
				r.finish(userID, RunStateError)
				metrics.RiskRunsTotal.WithLabelValues("canceled").Inc()
				summary.Duration = time.Since(summary.StartedAt)
				r.notifyFailure(ctx, userID, "Risk analysis was interrupted before finishing.")
				return summary, ctx.Err()
			}
		}

		result, err := r.calc.Calculate(ctx, userID, ref.ID)
		if err != nil {
			log.Printf("WARNING: risk calculation failed for contact %s: %v", ref.ID, err)
			metrics.CalculatorFailuresTotal.Inc()
			summary.Skipped++
			continue
		}
		if result == nil {
			// Not enough interaction history to score yet.
			summary.Skipped++
			continue
		}

		m, err := r.service.StoreResult(ctx, userID, ref.ID, result)
		if err != nil {
			log.Printf("WARNING: failed to store risk metric for contact %s: %v", ref.ID, err)
			summary.Skipped++
			continue
		}
		summary.SuccessCount++
		metrics.ContactsScoredTotal.Inc()

		alert, err := r.service.MaybeAlert(ctx, m, ref.Name)
		if err != nil {
			log.Printf("WARNING: failed to create alert for contact %s: %v", ref.ID, err)
			continue
		}
		if alert != nil {
			summary.AlertsCreated++
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	r.finish(userID, RunStateIdle)
	metrics.RiskRunsTotal.WithLabelValues("success").Inc()
	metrics.RiskRunDuration.Observe(summary.Duration.Seconds())

	if r.service.publisher != nil {
		r.service.publisher.Publish("risk_run", userID, summary)
	}
	if r.notifier != nil {
		r.notifier.Success(ctx, userID, fmt.Sprintf(
			"Risk analysis complete: %d of %d contacts scored, %d alerts created.",
			summary.SuccessCount, summary.Total, summary.AlertsCreated))
	}

	return summary, nil
}

func (r *Runner) notifyFailure(ctx context.Context, userID, message string) {
	if r.notifier != nil {
		r.notifier.Failure(ctx, userID, message)
	}
}

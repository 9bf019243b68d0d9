package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeCalc struct {
	results map[string]*Result // contactID -> result, nil entry = insufficient history
	errs    map[string]error
	started chan string // optional, signals each Calculate call
	release chan struct{}
	calls   int
}

func (f *fakeCalc) Calculate(ctx context.Context, userID, contactID string) (*Result, error) {
	f.calls++
	if f.started != nil {
		f.started <- contactID
	}
	if f.release != nil {
		<-f.release
	}
	if err, ok := f.errs[contactID]; ok {
		return nil, err
	}
	return f.results[contactID], nil
}

type fakeContacts struct {
	refs []ContactRef
	err  error
}

func (f *fakeContacts) ActiveContacts(ctx context.Context, userID string) ([]ContactRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refs, nil
}

type fakeNotifier struct {
	successes []string
	failures  []string
}

func (f *fakeNotifier) Success(ctx context.Context, userID, message string) {
	f.successes = append(f.successes, message)
}

func (f *fakeNotifier) Failure(ctx context.Context, userID, message string) {
	f.failures = append(f.failures, message)
}

func newTestRunner(calc Calculator, contacts ContactSource) (*Runner, *Service, *fakeNotifier) {
	svc := NewService(NewMemoryStore(), 0, 0)
	n := &fakeNotifier{}
	r := NewRunner(svc, calc, contacts, time.Millisecond).WithNotifier(n)
	return r, svc, n
}

func TestRun_ScoresAndAlerts(t *testing.T) {
	calc := &fakeCalc{results: map[string]*Result{
		"con_1": {RiskScore: 85, EngagementScore: 20},
		"con_2": {RiskScore: 50, EngagementScore: 70},
	}}
	contacts := &fakeContacts{refs: []ContactRef{
		{ID: "con_1", Name: "Maria Chen"},
		{ID: "con_2", Name: "Bob Okafor"},
	}}
	runner, svc, notifier := newTestRunner(calc, contacts)

	summary, err := runner.Run(context.Background(), "usr_one")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SuccessCount != 2 {
		t.Errorf("Expected 2 successes, got %d", summary.SuccessCount)
	}
	if summary.AlertsCreated != 1 {
		t.Errorf("Expected 1 alert, got %d", summary.AlertsCreated)
	}
	if summary.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got %d", summary.Skipped)
	}

	alerts, _ := svc.ListAlerts(context.Background(), "usr_one", false)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 stored alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != AlertHighRisk {
		t.Errorf("Expected high_risk alert, got %s", alerts[0].AlertType)
	}
	if !strings.Contains(alerts[0].Message, "Maria Chen") {
		t.Errorf("Expected alert message to name the contact, got %q", alerts[0].Message)
	}

	if len(notifier.successes) != 1 {
		t.Fatalf("Expected 1 success notification, got %d", len(notifier.successes))
	}
	if !strings.Contains(notifier.successes[0], "2 of 2") {
		t.Errorf("Unexpected success message: %q", notifier.successes[0])
	}

	if runner.State("usr_one") != RunStateIdle {
		t.Errorf("Expected idle state after run, got %s", runner.State("usr_one"))
	}
}

func TestRun_AllInsufficientHistory(t *testing.T) {
	calc := &fakeCalc{results: map[string]*Result{}}
	contacts := &fakeContacts{refs: []ContactRef{{ID: "con_1"}, {ID: "con_2"}, {ID: "con_3"}}}
	runner, svc, _ := newTestRunner(calc, contacts)

	summary, err := runner.Run(context.Background(), "usr_one")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SuccessCount != 0 || summary.AlertsCreated != 0 {
		t.Errorf("Expected 0/0, got %d/%d", summary.SuccessCount, summary.AlertsCreated)
	}
	if summary.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", summary.Skipped)
	}

	metrics, _ := svc.ListMetrics(context.Background(), "usr_one")
	if len(metrics) != 0 {
		t.Errorf("Expected no metrics stored, got %d", len(metrics))
	}
}

func TestRun_CalculatorErrorIsContained(t *testing.T) {
	calc := &fakeCalc{
		results: map[string]*Result{"con_2": {RiskScore: 40}},
		errs:    map[string]error{"con_1": errors.New("calculator unavailable")},
	}
	contacts := &fakeContacts{refs: []ContactRef{{ID: "con_1"}, {ID: "con_2"}}}
	runner, _, _ := newTestRunner(calc, contacts)

	summary, err := runner.Run(context.Background(), "usr_one")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.SuccessCount != 1 {
		t.Errorf("Expected 1 success, got %d", summary.SuccessCount)
	}
	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", summary.Skipped)
	}
}

func TestRun_ContactListFailureAborts(t *testing.T) {
	calc := &fakeCalc{}
	contacts := &fakeContacts{err: errors.New("db down")}
	runner, _, notifier := newTestRunner(calc, contacts)

	_, err := runner.Run(context.Background(), "usr_one")
	if err == nil {
		t.Fatal("Expected error when contact list is unavailable")
	}
	if calc.calls != 0 {
		t.Errorf("Expected no calculator calls, got %d", calc.calls)
	}
	if len(notifier.failures) != 1 {
		t.Errorf("Expected 1 failure notification, got %d", len(notifier.failures))
	}
	if runner.State("usr_one") != RunStateError {
		t.Errorf("Expected error state, got %s", runner.State("usr_one"))
	}
}

func TestRun_SecondRunRejected(t *testing.T) {
	calc := &fakeCalc{
		results: map[string]*Result{"con_1": {RiskScore: 10}},
		started: make(chan string),
		release: make(chan struct{}),
	}
	contacts := &fakeContacts{refs: []ContactRef{{ID: "con_1"}}}
	runner, _, _ := newTestRunner(calc, contacts)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), "usr_one")
		done <- err
	}()

	<-calc.started // first run is inside Calculate

	if _, err := runner.Run(context.Background(), "usr_one"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}
	if runner.State("usr_one") != RunStateRunning {
		t.Errorf("Expected running state, got %s", runner.State("usr_one"))
	}

	close(calc.release)
	if err := <-done; err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// Once idle again, a new run is accepted.
	calc.started = nil
	calc.release = nil
	if _, err := runner.Run(context.Background(), "usr_one"); err != nil {
		t.Errorf("Expected run to succeed after first finished: %v", err)
	}
}

func TestMaybeAlert_Thresholds(t *testing.T) {
	tests := []struct {
		score    int
		expected AlertType // "" means no alert
	}{
		{0, ""},
		{69, ""},
		{70, AlertStageStagnation},
		{79, AlertStageStagnation},
		{80, AlertHighRisk},
		{100, AlertHighRisk},
	}

	for _, tt := range tests {
		svc := NewService(NewMemoryStore(), 0, 0)
		ctx := context.Background()

		m, err := svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: tt.score})
		if err != nil {
			t.Fatalf("StoreResult(%d) failed: %v", tt.score, err)
		}

		a, err := svc.MaybeAlert(ctx, m, "Maria")
		if err != nil {
			t.Fatalf("MaybeAlert(%d) failed: %v", tt.score, err)
		}
		if tt.expected == "" {
			if a != nil {
				t.Errorf("Score %d: expected no alert, got %s", tt.score, a.AlertType)
			}
			continue
		}
		if a == nil {
			t.Errorf("Score %d: expected %s alert, got none", tt.score, tt.expected)
			continue
		}
		if a.AlertType != tt.expected {
			t.Errorf("Score %d: expected %s, got %s", tt.score, tt.expected, a.AlertType)
		}
		if a.RiskScore != tt.score {
			t.Errorf("Score %d: alert carries score %d", tt.score, a.RiskScore)
		}
	}
}

func TestMaybeAlert_NoDeduplication(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	m, _ := svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 90})
	svc.MaybeAlert(ctx, m, "Maria")
	svc.MaybeAlert(ctx, m, "Maria")

	alerts, _ := svc.ListAlerts(ctx, "usr_one", false)
	if len(alerts) != 2 {
		t.Errorf("Expected 2 alerts (no dedup), got %d", len(alerts))
	}
}

func TestUpsert_LastWriteWins(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 30, RiskFactors: []string{"slow replies"}})
	svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 75, RiskFactors: []string{"no viewings booked"}})

	m, err := svc.GetMetric(ctx, "usr_one", "con_1")
	if err != nil {
		t.Fatalf("GetMetric failed: %v", err)
	}
	if m.RiskScore != 75 {
		t.Errorf("Expected latest score 75, got %d", m.RiskScore)
	}
	if len(m.RiskFactors) != 1 || m.RiskFactors[0] != "no viewings booked" {
		t.Errorf("Expected factors replaced, got %v", m.RiskFactors)
	}

	list, _ := svc.ListMetrics(ctx, "usr_one")
	if len(list) != 1 {
		t.Errorf("Expected single metric row after upsert, got %d", len(list))
	}
}

func TestListMetrics_OrderedByScoreDesc(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	svc.StoreResult(ctx, "usr_one", "con_a", &Result{RiskScore: 20})
	svc.StoreResult(ctx, "usr_one", "con_b", &Result{RiskScore: 95})
	svc.StoreResult(ctx, "usr_one", "con_c", &Result{RiskScore: 60})
	svc.StoreResult(ctx, "usr_two", "con_d", &Result{RiskScore: 99})

	list, err := svc.ListMetrics(ctx, "usr_one")
	if err != nil {
		t.Fatalf("ListMetrics failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 metrics, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].RiskScore > list[i-1].RiskScore {
			t.Errorf("Metrics out of order at %d: %d > %d", i, list[i].RiskScore, list[i-1].RiskScore)
		}
	}
}

func TestListAlerts_ResolvedFiltering(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	m, _ := svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 85})
	first, _ := svc.MaybeAlert(ctx, m, "Maria")
	svc.MaybeAlert(ctx, m, "Maria")

	if _, err := svc.Resolve(ctx, "usr_one", first.ID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	open, _ := svc.ListAlerts(ctx, "usr_one", false)
	if len(open) != 1 {
		t.Errorf("Expected 1 open alert, got %d", len(open))
	}
	all, _ := svc.ListAlerts(ctx, "usr_one", true)
	if len(all) != 2 {
		t.Errorf("Expected 2 alerts with includeResolved, got %d", len(all))
	}
}

func TestResolve_Idempotent(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	m, _ := svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 85})
	a, _ := svc.MaybeAlert(ctx, m, "Maria")

	r1, err := svc.Resolve(ctx, "usr_one", a.ID)
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	if !r1.IsResolved || !r1.IsRead {
		t.Error("Expected resolve to set both resolved and read")
	}

	r2, err := svc.Resolve(ctx, "usr_one", a.ID)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if !r2.IsResolved {
		t.Error("Expected alert to stay resolved")
	}
}

func TestAlertOwnership(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	m, _ := svc.StoreResult(ctx, "usr_one", "con_1", &Result{RiskScore: 85})
	a, _ := svc.MaybeAlert(ctx, m, "Maria")

	if _, err := svc.Resolve(ctx, "usr_two", a.ID); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("Expected ErrAlertNotFound for other user, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, "usr_two", a.ID); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("Expected ErrAlertNotFound for other user, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	scores := []int{20, 70, 85, 90}
	for i, score := range scores {
		m, _ := svc.StoreResult(ctx, "usr_one", fmt.Sprintf("con_%d", i), &Result{RiskScore: score, EngagementScore: 50})
		svc.MaybeAlert(ctx, m, "")
	}

	sum, err := svc.Summary(ctx, "usr_one")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.ContactCount != 4 {
		t.Errorf("Expected 4 contacts, got %d", sum.ContactCount)
	}
	if sum.AtRiskCount != 3 {
		t.Errorf("Expected 3 at risk (>= 70), got %d", sum.AtRiskCount)
	}
	if sum.HighRiskCount != 2 {
		t.Errorf("Expected 2 high risk (>= 80), got %d", sum.HighRiskCount)
	}
	if sum.UnresolvedAlerts != 3 {
		t.Errorf("Expected 3 unresolved alerts, got %d", sum.UnresolvedAlerts)
	}
	expected := float64(20+70+85+90) / 4
	if sum.AverageScore != expected {
		t.Errorf("Expected average %.2f, got %.2f", expected, sum.AverageScore)
	}
}

package audithook

import (
	"context"
	"errors"
	"testing"
)

type capturedEvents struct {
	events []*AuditEvent
	fail   bool
}

func (c *capturedEvents) Record(_ context.Context, event *AuditEvent) error {
	if c.fail {
		return errors.New("backend down")
	}
	c.events = append(c.events, event)
	return nil
}

func TestLimitExceededEvent(t *testing.T) {
	rec := &capturedEvents{}
	ext := New(rec)
	ctx := context.Background()

	if err := ext.OnLimitExceeded(ctx, 42, -15001, 15000); err != nil {
		t.Fatalf("OnLimitExceeded: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	evt := rec.events[0]
	if evt.Action != ActionLimitExceeded {
		t.Errorf("Action: got %q, want %q", evt.Action, ActionLimitExceeded)
	}
	if evt.Severity != SeverityWarning || evt.Outcome != OutcomeFailure {
		t.Errorf("severity/outcome: got %q/%q", evt.Severity, evt.Outcome)
	}
	if evt.ResourceID != "42" {
		t.Errorf("ResourceID: got %q, want %q", evt.ResourceID, "42")
	}
	if evt.Metadata["ceiling"] != int64(15000) {
		t.Errorf("ceiling metadata: got %v", evt.Metadata["ceiling"])
	}
}

func TestSettlementFailedCarriesReason(t *testing.T) {
	rec := &capturedEvents{}
	ext := New(rec)

	cause := errors.New("insufficient credit")
	if err := ext.OnSettlementFailed(context.Background(), 1, 10, cause); err != nil {
		t.Fatalf("OnSettlementFailed: %v", err)
	}

	evt := rec.events[0]
	if evt.Reason != "insufficient credit" {
		t.Errorf("Reason: got %q", evt.Reason)
	}
	if evt.Metadata["error"] != "insufficient credit" {
		t.Errorf("error metadata: got %v", evt.Metadata["error"])
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &capturedEvents{}
	ext := New(rec, WithEnabledActions(ActionSettlementCompleted))
	ctx := context.Background()

	if err := ext.OnMemberCreated(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnSettlementCompleted(ctx, nil, 0); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	if rec.events[0].Action != ActionSettlementCompleted {
		t.Errorf("Action: got %q", rec.events[0].Action)
	}
}

func TestDisabledActionsFilter(t *testing.T) {
	rec := &capturedEvents{}
	ext := New(rec, WithDisabledActions(ActionMemberCreated))
	ctx := context.Background()

	if err := ext.OnMemberCreated(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnExchangeCreated(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(rec.events))
	}
	if rec.events[0].Action != ActionExchangeCreated {
		t.Errorf("Action: got %q", rec.events[0].Action)
	}
}

func TestRecorderFailureNeverPropagates(t *testing.T) {
	ext := New(&capturedEvents{fail: true})

	// A broken audit backend must never break the ledger pipeline.
	if err := ext.OnMemberCreated(context.Background(), nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestRecorderFunc(t *testing.T) {
	var called bool
	fn := RecorderFunc(func(_ context.Context, _ *AuditEvent) error {
		called = true
		return nil
	})

	ext := New(fn)
	if err := ext.OnExchangeConfirmed(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("RecorderFunc was not invoked")
	}
}

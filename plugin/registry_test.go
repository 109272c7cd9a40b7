package plugin_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/trueque/plugin"
)

type countingPlugin struct {
	name        string
	members     atomic.Int64
	limits      atomic.Int64
	settlements atomic.Int64
}

func (p *countingPlugin) Name() string { return p.name }

func (p *countingPlugin) OnMemberCreated(_ context.Context, _ interface{}) error {
	p.members.Add(1)
	return nil
}

func (p *countingPlugin) OnLimitExceeded(_ context.Context, _ int64, _, _ int64) error {
	p.limits.Add(1)
	return nil
}

func (p *countingPlugin) OnSettlementCompleted(_ context.Context, _ interface{}, _ time.Duration) error {
	p.settlements.Add(1)
	return nil
}

type staticScorer struct{ name string }

func (s staticScorer) Name() string { return s.name }

func (s staticScorer) ScorerName() string { return s.name }

func (s staticScorer) Score(_ float64, _ int64) float64 { return 0 }

func TestRegisterAndDispatch(t *testing.T) {
	r := plugin.NewRegistry()
	p := &countingPlugin{name: "counter"}

	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if got := r.Get("counter"); got != p {
		t.Errorf("Get returned %v", got)
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing): got %v, want nil", got)
	}

	ctx := context.Background()
	r.EmitMemberCreated(ctx, nil)
	r.EmitMemberCreated(ctx, nil)
	r.EmitLimitExceeded(ctx, 1, -200, 100)
	r.EmitSettlementCompleted(ctx, nil, time.Millisecond)

	// Hooks the plugin does not implement must be safe to emit.
	r.EmitExchangeCreated(ctx, nil)
	r.EmitMatchesComputed(ctx, nil)

	if got := p.members.Load(); got != 2 {
		t.Errorf("OnMemberCreated calls: got %d, want 2", got)
	}
	if got := p.limits.Load(); got != 1 {
		t.Errorf("OnLimitExceeded calls: got %d, want 1", got)
	}
	if got := p.settlements.Load(); got != 1 {
		t.Errorf("OnSettlementCompleted calls: got %d, want 1", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&countingPlugin{name: "dup"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&countingPlugin{name: "dup"}); err == nil {
		t.Error("expected error for duplicate plugin name")
	}
	if r.Count() != 1 {
		t.Errorf("Count after duplicate: got %d, want 1", r.Count())
	}
}

func TestGetMatchScorer(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(staticScorer{name: "flat"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := r.GetMatchScorer("flat"); got == nil {
		t.Error("expected registered scorer")
	}
	if got := r.GetMatchScorer("missing"); got != nil {
		t.Errorf("GetMatchScorer(missing): got %v, want nil", got)
	}
}

func TestList(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&countingPlugin{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(staticScorer{name: "b"}); err != nil {
		t.Fatal(err)
	}

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("List: got %d plugins, want 2", len(got))
	}
}

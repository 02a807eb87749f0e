package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "over drawn"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block: over drawn") || strings.Contains(err.Error(), "warn") {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if Code(err) != CodeRuleViolation {
		t.Fatalf("expected rule violation code, got %s", Code(err))
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"first"})
	engine.Register(staticRule{"second"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, []Change{{Entity: EntitySeedLot, Action: ActionCreate, ID: "s1"}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || res.Violations[0].Rule != "first" || res.Violations[1].Rule != "second" {
		t.Fatalf("expected violations in registration order, got %+v", res.Violations)
	}
	if got := engine.Rules(); len(got) != 2 {
		t.Fatalf("expected 2 registered rules, got %d", len(got))
	}
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"ok"})
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}

type emptyView struct{}

func (emptyView) FindSeedLot(string) (SeedLot, bool)                  { return SeedLot{}, false }
func (emptyView) FindBatch(string) (Batch, bool)                      { return Batch{}, false }
func (emptyView) FindUnit(string) (Unit, bool)                        { return Unit{}, false }
func (emptyView) FindWeightLot(string) (WeightLot, bool)              { return WeightLot{}, false }
func (emptyView) FindByBatchNumber(string) (EntityType, string, bool) { return "", "", false }
func (emptyView) ListUnits(string) []Unit                             { return nil }
func (emptyView) ListSeedSplits(string) []SeedLot                     { return nil }
func (emptyView) ListBatchesBySource(string) []Batch                  { return nil }
func (emptyView) ListWeightChildren(string) []WeightLot               { return nil }
func (emptyView) ListSeedLots() []SeedLot                             { return nil }
func (emptyView) ListBatches() []Batch                                { return nil }
func (emptyView) ListWeightLots() []WeightLot                         { return nil }
func (emptyView) ListAudit(string) []AuditEvent                       { return nil }

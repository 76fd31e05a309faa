package bisym_test

import (
	"testing"

	"github.com/gosymex/bisym"
)

func TestDistanceManager_WeighDone(t *testing.T) {
	_, pkg := buildSSA(t, branchSrc)
	fn := mustFunc(t, pkg, "F")

	m := bisym.NewModule(nil)
	kf := m.Function(fn)
	dc := bisym.NewDistanceCalculator(m)
	dm := bisym.NewDistanceManager(dc)

	state := bisym.NewExecutionState(1, kf)
	target := bisym.NewReachBlock(kf.Entry, false)

	r := dm.Weigh(state, target, false)
	if r.Kind != bisym.DistanceDone {
		t.Fatalf("expected Done, got %v", r.Kind)
	}
}

func TestDistanceManager_WeighContinue(t *testing.T) {
	_, pkg := buildSSA(t, branchSrc)
	fn := mustFunc(t, pkg, "F")

	m := bisym.NewModule(nil)
	kf := m.Function(fn)
	dc := bisym.NewDistanceCalculator(m)
	dm := bisym.NewDistanceManager(dc)

	if len(kf.Entry.Successors()) == 0 {
		t.Fatal("expected entry to have a successor to target")
	}
	other := kf.Entry.Successors()[0]

	state := bisym.NewExecutionState(1, kf)
	target := bisym.NewReachBlock(other, false)

	r := dm.Weigh(state, target, false)
	if r.Kind != bisym.DistanceContinue {
		t.Fatalf("expected Continue, got %v", r.Kind)
	}
	if !r.IsInsideFunction {
		t.Fatal("expected the target to be classified inside the current function")
	}
}

func TestIsReachedTarget_ReachBlock(t *testing.T) {
	fn := testFunction()
	state := bisym.NewExecutionState(1, fn)
	target := bisym.NewReachBlock(fn.Entry, false)

	if !bisym.IsReachedTarget(state, target, false) {
		t.Fatal("expected the entry block to satisfy its own reach target")
	}
}

func TestTargetManager_UpdateDoneStepsForestAndBlocks(t *testing.T) {
	fn := testFunction()
	m := bisym.NewModule(nil)
	dc := bisym.NewDistanceCalculator(m)
	dm := bisym.NewDistanceManager(dc)

	target := bisym.NewReachBlock(fn.Entry, false)
	tm := bisym.NewTargetManager(bisym.NewContext(), dm, nil, false)

	state := bisym.NewExecutionState(1, fn)
	tm.AddTargets(state, []bisym.Target{target})

	tm.UpdateTargets(state, false)

	if state.TargetHistory() == nil {
		t.Fatal("expected target history recorded after reaching target")
	}
}

func TestTargetManager_UpdateDoneInternsTargetHistoryAcrossStates(t *testing.T) {
	fn := testFunction()
	m := bisym.NewModule(nil)
	dc := bisym.NewDistanceCalculator(m)
	dm := bisym.NewDistanceManager(dc)
	ctx := bisym.NewContext()

	target := bisym.NewReachBlock(fn.Entry, false)
	tm := bisym.NewTargetManager(ctx, dm, nil, false)

	a := bisym.NewExecutionState(1, fn)
	b := bisym.NewExecutionState(2, fn)
	tm.AddTargets(a, []bisym.Target{target})
	tm.AddTargets(b, []bisym.Target{target})

	tm.UpdateTargets(a, false)
	tm.UpdateTargets(b, false)

	if a.TargetHistory() == nil || b.TargetHistory() == nil {
		t.Fatal("expected both states to record a target history entry")
	}
	if a.TargetHistory() != b.TargetHistory() {
		t.Fatal("expected the shared Context to intern equal target histories to the same pointer")
	}
}

func TestSubscribeTargetManager_UpdatesTargetsOnAddedState(t *testing.T) {
	fn := testFunction()
	m := bisym.NewModule(nil)
	dc := bisym.NewDistanceCalculator(m)
	dm := bisym.NewDistanceManager(dc)

	target := bisym.NewReachBlock(fn.Entry, false)
	calc := func() []bisym.Target { return []bisym.Target{target} }
	tm := bisym.NewTargetManager(bisym.NewContext(), dm, calc, false)

	hub := bisym.NewHub(func(*bisym.ExecutionState, bisym.Target) bool { return false })
	bisym.SubscribeTargetManager(hub, tm)

	state := bisym.NewExecutionState(1, fn)
	hub.BranchState(state)
	hub.UpdateSubscribers()

	if state.TargetHistory() == nil {
		t.Fatal("expected the hub's fan-out to drive UpdateTargets and record a reached target")
	}
}

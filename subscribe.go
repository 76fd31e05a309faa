package bisym

// The adapters below let components that only care about one event kind
// (C11's searchers, C13's initializer, C12's target manager) subscribe to
// the hub's unified fan-out (C10) instead of being wired through bespoke
// per-call routing, per spec.md §4.C10's "fans them out to searchers and
// target managers" description.

// SubscribeForwardSearcher registers searcher on hub so it learns about
// every state the hub admits or drops.
func SubscribeForwardSearcher(hub *Hub, searcher ForwardSearcher) {
	hub.Subscribe(forwardSearcherSubscriber{searcher})
}

type forwardSearcherSubscriber struct{ searcher ForwardSearcher }

func (s forwardSearcherSubscriber) NotifyStates(e StateEvent)           { s.searcher.Update(e) }
func (s forwardSearcherSubscriber) NotifyPropagations(PropagationEvent) {}
func (s forwardSearcherSubscriber) NotifyPobs(PobEvent)                 {}
func (s forwardSearcherSubscriber) NotifyConflicts(ConflictEvent)       {}

// SubscribeBackwardSearcher registers searcher on hub so it learns about
// every propagation the hub creates or retires, including the ones
// closeIsolatedIfReached creates internally (never visible to a per-action
// caller).
func SubscribeBackwardSearcher(hub *Hub, searcher BackwardSearcher) {
	hub.Subscribe(backwardSearcherSubscriber{searcher})
}

type backwardSearcherSubscriber struct{ searcher BackwardSearcher }

func (s backwardSearcherSubscriber) NotifyStates(StateEvent) {}
func (s backwardSearcherSubscriber) NotifyPropagations(e PropagationEvent) {
	s.searcher.Update(e)
}
func (s backwardSearcherSubscriber) NotifyPobs(PobEvent)           {}
func (s backwardSearcherSubscriber) NotifyConflicts(ConflictEvent) {}

// SubscribeInitializer registers init on hub so it schedules/retires
// candidate isolate-execute instructions from every pob the hub admits or
// closes, including pobs closeRootPobsIfReached removes without any
// executor round-trip.
func SubscribeInitializer(hub *Hub, init *ConflictCoreInitializer) {
	hub.Subscribe(initializerSubscriber{init})
}

type initializerSubscriber struct{ init *ConflictCoreInitializer }

func (s initializerSubscriber) NotifyStates(StateEvent)           {}
func (s initializerSubscriber) NotifyPropagations(PropagationEvent) {}
func (s initializerSubscriber) NotifyPobs(e PobEvent) {
	for _, pob := range e.Added {
		s.init.AddPob(pob)
	}
	for _, pob := range e.Removed {
		s.init.RemovePob(pob)
	}
}
func (s initializerSubscriber) NotifyConflicts(ConflictEvent) {}

// SubscribeTargetManager registers tm on hub so every newly admitted
// non-isolated state is placed under distance-classified targeting,
// pulling fresh candidate targets from tm's calculator when it has none.
func SubscribeTargetManager(hub *Hub, tm *TargetManager) {
	hub.Subscribe(targetManagerSubscriber{tm})
}

type targetManagerSubscriber struct{ tm *TargetManager }

func (s targetManagerSubscriber) NotifyStates(e StateEvent) {
	for _, state := range e.Added {
		if state.Isolated() {
			continue
		}
		s.tm.UpdateTargets(state, true)
	}
}
func (s targetManagerSubscriber) NotifyPropagations(PropagationEvent) {}
func (s targetManagerSubscriber) NotifyPobs(PobEvent)                 {}
func (s targetManagerSubscriber) NotifyConflicts(ConflictEvent)       {}

// engineObserverSubscriber mirrors hub-delivered pob/propagation events
// onto an EngineObserver, closing the gap spec.md §4.C10/A3 describe
// between the hub's bookkeeping and the metrics it should drive.
type engineObserverSubscriber struct {
	hub      *Hub
	observer EngineObserver
}

func (s engineObserverSubscriber) NotifyStates(StateEvent) {}
func (s engineObserverSubscriber) NotifyPropagations(e PropagationEvent) {
	for range e.Added {
		s.observer.ObservePropagation()
	}
}
func (s engineObserverSubscriber) NotifyPobs(PobEvent) {
	s.observer.SetPobsOpen(s.hub.OpenPobCount())
}
func (s engineObserverSubscriber) NotifyConflicts(ConflictEvent) {}

package bisym

// BlockPredicate reports whether a block satisfies some caller-defined
// stopping condition, used by nearestPredicateSatisfying/dismantleFunction.
type BlockPredicate func(b *Block) bool

// Edge is a directed pair of blocks crossed while dismantling a function.
type Edge struct {
	From, To *Block
}

// DistanceCalculator computes and memoizes shortest-hop distances over a
// module's block CFGs and function call graph, per spec.md §4.C4.
type DistanceCalculator struct {
	module *Module

	blockDist         map[*Block]map[*Block]int
	blockBackwardDist map[*Block]map[*Block]int
	funcDist          map[*Function]map[*Function]int
	funcBackwardDist  map[*Function]map[*Function]int
}

// NewDistanceCalculator returns a calculator over m's shadow model.
func NewDistanceCalculator(m *Module) *DistanceCalculator {
	return &DistanceCalculator{
		module:            m,
		blockDist:         make(map[*Block]map[*Block]int),
		blockBackwardDist: make(map[*Block]map[*Block]int),
		funcDist:          make(map[*Function]map[*Function]int),
		funcBackwardDist:  make(map[*Function]map[*Function]int),
	}
}

// Distance returns the memoized map of shortest forward hops from `from`
// to every block reachable in its function's block CFG.
func (dc *DistanceCalculator) Distance(from *Block) map[*Block]int {
	if d, ok := dc.blockDist[from]; ok {
		return d
	}
	d := bfsBlocks(from, (*Block).Successors)
	dc.blockDist[from] = d
	return d
}

// BackwardDistance is Distance over the reverse block CFG.
func (dc *DistanceCalculator) BackwardDistance(from *Block) map[*Block]int {
	if d, ok := dc.blockBackwardDist[from]; ok {
		return d
	}
	d := bfsBlocks(from, (*Block).Predecessors)
	dc.blockBackwardDist[from] = d
	return d
}

func bfsBlocks(from *Block, neighbors func(*Block) []*Block) map[*Block]int {
	dist := map[*Block]int{from: 0}
	queue := []*Block{from}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, n := range neighbors(b) {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[b] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// callees returns every function statically called from any block of f.
func callees(f *Function) map[*Function]struct{} {
	out := make(map[*Function]struct{})
	for _, b := range f.Blocks {
		for callee := range f.Callees(b) {
			out[callee] = struct{}{}
		}
	}
	return out
}

// FunctionDistance is Distance over the call graph.
func (dc *DistanceCalculator) FunctionDistance(from *Function) map[*Function]int {
	if d, ok := dc.funcDist[from]; ok {
		return d
	}
	d := bfsFunctions(from, callees)
	dc.funcDist[from] = d
	return d
}

// FunctionBackwardDistance is FunctionDistance over the reverse call graph,
// built from every function shadow the module has constructed so far.
func (dc *DistanceCalculator) FunctionBackwardDistance(from *Function) map[*Function]int {
	if d, ok := dc.funcBackwardDist[from]; ok {
		return d
	}
	callers := make(map[*Function]map[*Function]struct{})
	for _, f := range dc.module.Functions() {
		for callee := range callees(f) {
			if callers[callee] == nil {
				callers[callee] = make(map[*Function]struct{})
			}
			callers[callee][f] = struct{}{}
		}
	}
	d := bfsFunctions(from, func(f *Function) map[*Function]struct{} { return callers[f] })
	dc.funcBackwardDist[from] = d
	return d
}

func bfsFunctions(from *Function, neighbors func(*Function) map[*Function]struct{}) map[*Function]int {
	dist := map[*Function]int{from: 0}
	queue := []*Function{from}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		for n := range neighbors(f) {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[f] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// NearestPredicateSatisfying performs a BFS from `from` (exclusive),
// following successors if forward or predecessors otherwise, halting each
// frontier branch as soon as it enters a block satisfying predicate.
// Returns the closed set of first hits, per spec.md §4.C4.
func (dc *DistanceCalculator) NearestPredicateSatisfying(from *Block, predicate BlockPredicate, forward bool) []*Block {
	neighbors := (*Block).Successors
	if !forward {
		neighbors = (*Block).Predecessors
	}

	var hits []*Block
	visited := map[*Block]struct{}{from: {}}
	queue := neighbors(from)
	for _, b := range queue {
		visited[b] = struct{}{}
	}
	for i := 0; i < len(queue); i++ {
		b := queue[i]
		if predicate(b) {
			hits = append(hits, b)
			continue
		}
		for _, n := range neighbors(b) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return hits
}

// DismantleFunction "chops" kf into regions separated by predicate-
// satisfying blocks: a BFS from the entry block that repeatedly replaces
// the frontier with its nearest predicate-satisfying successors, returning
// the set of edges crossed. Per spec.md §4.C4.
func (dc *DistanceCalculator) DismantleFunction(kf *Function, predicate BlockPredicate) []Edge {
	if kf.Entry == nil {
		return nil
	}

	var edges []Edge
	visited := map[*Block]struct{}{kf.Entry: {}}
	frontier := []*Block{kf.Entry}
	for len(frontier) > 0 {
		var next []*Block
		for _, b := range frontier {
			for _, hit := range dc.NearestPredicateSatisfying(b, predicate, true) {
				edges = append(edges, Edge{From: b, To: hit})
				if _, seen := visited[hit]; !seen {
					visited[hit] = struct{}{}
					next = append(next, hit)
				}
			}
		}
		frontier = next
	}
	return edges
}

package bisym

import "sort"

// WeightedTree is a self-balancing (AVL) binary search tree keyed by an
// ordered key, where every node also carries a weight and the subtree's
// cumulative weight sum. Choose(p) locates the element whose cumulative
// weight prefix crosses p*totalWeight in time proportional to tree depth,
// per spec.md §4.C1.
type WeightedTree struct {
	root *wtNode
	less func(a, b interface{}) bool
}

// NewWeightedTree returns an empty tree ordered by less.
func NewWeightedTree(less func(a, b interface{}) bool) *WeightedTree {
	return &WeightedTree{less: less}
}

type wtNode struct {
	key         interface{}
	weight      float64
	sumWeights  float64
	height      int
	left, right *wtNode
}

func wtHeight(n *wtNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

func wtSum(n *wtNode) float64 {
	if n == nil {
		return 0
	}
	return n.sumWeights
}

func (n *wtNode) recalc() {
	n.height = 1 + max(wtHeight(n.left), wtHeight(n.right))
	n.sumWeights = n.weight + wtSum(n.left) + wtSum(n.right)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func wtBalance(n *wtNode) int {
	if n == nil {
		return 0
	}
	return wtHeight(n.left) - wtHeight(n.right)
}

func wtRotateRight(y *wtNode) *wtNode {
	x := y.left
	y.left = x.right
	x.right = y
	y.recalc()
	x.recalc()
	return x
}

func wtRotateLeft(x *wtNode) *wtNode {
	y := x.right
	x.right = y.left
	y.left = x
	x.recalc()
	y.recalc()
	return y
}

func wtRebalance(n *wtNode) *wtNode {
	n.recalc()
	balance := wtBalance(n)
	if balance > 1 {
		if wtBalance(n.left) < 0 {
			n.left = wtRotateLeft(n.left)
		}
		return wtRotateRight(n)
	}
	if balance < -1 {
		if wtBalance(n.right) > 0 {
			n.right = wtRotateRight(n.right)
		}
		return wtRotateLeft(n)
	}
	return n
}

// Insert adds key with the given weight. Inserting a duplicate key is a
// programming error.
func (t *WeightedTree) Insert(key interface{}, weight float64) {
	assert(weight >= 0, "WeightedTree.Insert: negative weight")
	var inserted bool
	t.root = t.insert(t.root, key, weight, &inserted)
	assert(inserted, "WeightedTree.Insert: duplicate key")
}

func (t *WeightedTree) insert(n *wtNode, key interface{}, weight float64, inserted *bool) *wtNode {
	if n == nil {
		*inserted = true
		return &wtNode{key: key, weight: weight, sumWeights: weight, height: 1}
	}
	if t.less(key, n.key) {
		n.left = t.insert(n.left, key, weight, inserted)
	} else if t.less(n.key, key) {
		n.right = t.insert(n.right, key, weight, inserted)
	} else {
		*inserted = false
		return n
	}
	return wtRebalance(n)
}

// Remove deletes key from the tree. Removing an absent key is a programming
// error.
func (t *WeightedTree) Remove(key interface{}) {
	var removed bool
	t.root = t.remove(t.root, key, &removed)
	assert(removed, "WeightedTree.Remove: absent key")
}

func (t *WeightedTree) remove(n *wtNode, key interface{}, removed *bool) *wtNode {
	if n == nil {
		*removed = false
		return nil
	}
	if t.less(key, n.key) {
		n.left = t.remove(n.left, key, removed)
	} else if t.less(n.key, key) {
		n.right = t.remove(n.right, key, removed)
	} else {
		*removed = true
		if n.left == nil {
			return n.right
		} else if n.right == nil {
			return n.left
		}
		succ := wtMin(n.right)
		n.key, n.weight = succ.key, succ.weight
		var dummy bool
		n.right = t.remove(n.right, succ.key, &dummy)
	}
	return wtRebalance(n)
}

func wtMin(n *wtNode) *wtNode {
	for n.left != nil {
		n = n.left
	}
	return n
}

// Update changes the weight of an existing key. Updating an absent key is a
// programming error.
func (t *WeightedTree) Update(key interface{}, weight float64) {
	assert(weight >= 0, "WeightedTree.Update: negative weight")
	n := t.find(t.root, key)
	assert(n != nil, "WeightedTree.Update: absent key")
	n.weight = weight
	t.root = t.recalcPath(t.root, key)
}

// recalcPath recomputes sumWeights along the path to key after an in-place
// weight change; the tree shape is unchanged so no rotation is needed.
func (t *WeightedTree) recalcPath(n *wtNode, key interface{}) *wtNode {
	if n == nil {
		return nil
	}
	if t.less(key, n.key) {
		n.left = t.recalcPath(n.left, key)
	} else if t.less(n.key, key) {
		n.right = t.recalcPath(n.right, key)
	}
	n.recalc()
	return n
}

func (t *WeightedTree) find(n *wtNode, key interface{}) *wtNode {
	for n != nil {
		if t.less(key, n.key) {
			n = n.left
		} else if t.less(n.key, key) {
			n = n.right
		} else {
			return n
		}
	}
	return nil
}

// Contains returns true if key is present.
func (t *WeightedTree) Contains(key interface{}) bool {
	return t.find(t.root, key) != nil
}

// GetWeight returns the weight of key. Panics if key is absent.
func (t *WeightedTree) GetWeight(key interface{}) float64 {
	n := t.find(t.root, key)
	assert(n != nil, "WeightedTree.GetWeight: absent key")
	return n.weight
}

// Len returns the number of keys in the tree.
func (t *WeightedTree) Len() int {
	return wtLen(t.root)
}

func wtLen(n *wtNode) int {
	if n == nil {
		return 0
	}
	return 1 + wtLen(n.left) + wtLen(n.right)
}

// TotalWeight returns the sum of all live weights.
func (t *WeightedTree) TotalWeight() float64 {
	return wtSum(t.root)
}

// Choose returns the key whose cumulative weight prefix crosses p*total,
// p in [0,1). Ties break left-first. Panics if the tree is empty.
func (t *WeightedTree) Choose(p float64) interface{} {
	assert(t.root != nil, "WeightedTree.Choose: empty tree")
	target := p * t.root.sumWeights
	n := t.root
	for {
		left := wtSum(n.left)
		if target < left {
			n = n.left
			continue
		}
		target -= left
		if target < n.weight || n.right == nil {
			return n.key
		}
		target -= n.weight
		n = n.right
	}
}

// WeightedQueue is the alternate structure from spec.md §4.C1: integer
// weight buckets with FIFO ordering within a bucket. Choose(p) returns the
// FIFO head of the least bucket with p <= weight, or the max bucket's head
// if p >= the maximum weight present.
type WeightedQueue struct {
	buckets map[int][]interface{}
}

// NewWeightedQueue returns an empty weighted queue.
func NewWeightedQueue() *WeightedQueue {
	return &WeightedQueue{buckets: make(map[int][]interface{})}
}

// Push enqueues v into the bucket for the given integer weight.
func (q *WeightedQueue) Push(weight int, v interface{}) {
	q.buckets[weight] = append(q.buckets[weight], v)
}

// Remove removes the first occurrence of v from its weight bucket.
func (q *WeightedQueue) Remove(weight int, v interface{}) {
	bucket := q.buckets[weight]
	for i, x := range bucket {
		if x == v {
			q.buckets[weight] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Choose returns (without removing) the FIFO head of the least bucket whose
// weight is >= p, or of the maximum weight bucket if p exceeds every weight
// present. Returns nil, false if the queue is empty.
func (q *WeightedQueue) Choose(p int) (interface{}, bool) {
	var weights []int
	for w, bucket := range q.buckets {
		if len(bucket) > 0 {
			weights = append(weights, w)
		}
	}
	if len(weights) == 0 {
		return nil, false
	}
	sort.Ints(weights)

	for _, w := range weights {
		if p <= w {
			return q.buckets[w][0], true
		}
	}
	max := weights[len(weights)-1]
	return q.buckets[max][0], true
}

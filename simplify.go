package bisym

// SimplifyPolicy selects how the simplifier treats select expressions
// while rewriting, per spec.md §4.C5.
type SimplifyPolicy int

const (
	// SimplifyPolicySimple performs purely syntactic substitution; it
	// never recurses into a select's branches.
	SimplifyPolicySimple SimplifyPolicy = iota
	// SimplifyPolicyFull additionally evaluates a select's condition
	// against the current replacement set, recursing into the chosen
	// branch when the condition resolves to a constant.
	SimplifyPolicyFull
)

// replEntry is one equality-derived substitution rule: replace any node
// structurally equal to a key with Value, crediting Source as the
// constraint that produced the rule.
type replEntry struct {
	Value  Expr
	Source Expr
}

// buildReplacements collects, for every constraint: an {x = c} rule when
// exactly one side is constant, and a {p = true} rule for the constraint
// itself (or {p = false} when the constraint is a negation), per spec.md
// §4.C5.
func buildReplacements(constraints []Expr) map[string]replEntry {
	repl := make(map[string]replEntry, len(constraints)*2)
	for _, c := range constraints {
		if b, ok := c.(*BinaryExpr); ok && b.Op == EQ {
			lc, lok := b.LHS.(*ConstantExpr)
			rc, rok := b.RHS.(*ConstantExpr)
			if lok && !rok {
				repl[b.RHS.String()] = replEntry{Value: lc, Source: c}
			} else if rok && !lok {
				repl[b.LHS.String()] = replEntry{Value: rc, Source: c}
			}
		}

		if n, ok := c.(*NotExpr); ok {
			repl[n.Expr.String()] = replEntry{Value: NewBoolConstantExpr(false), Source: c}
		} else {
			repl[c.String()] = replEntry{Value: NewBoolConstantExpr(true), Source: c}
		}
	}
	return repl
}

// SimplifyExpr rewrites e bottom-up, replacing any subtree structurally
// equal to a replacement key derived from constraints. Returns the
// rewritten expression and the set of constraints that contributed a rule
// actually applied during the rewrite, per spec.md §4.C5.
func SimplifyExpr(constraints []Expr, e Expr, policy SimplifyPolicy) (Expr, []Expr) {
	repl := buildReplacements(constraints)
	contrib := make(map[string]Expr)
	out := simplifyNode(repl, policy, e, contrib)

	used := make([]Expr, 0, len(contrib))
	for _, c := range contrib {
		used = append(used, c)
	}
	return out, used
}

func simplifyNode(repl map[string]replEntry, policy SimplifyPolicy, e Expr, contrib map[string]Expr) Expr {
	if entry, ok := repl[e.String()]; ok {
		contrib[entry.Source.String()] = entry.Source
		return entry.Value
	}

	switch expr := e.(type) {
	case *ConstantExpr:
		return expr
	case *BinaryExpr:
		lhs := simplifyNode(repl, policy, expr.LHS, contrib)
		rhs := simplifyNode(repl, policy, expr.RHS, contrib)
		return NewBinaryExpr(expr.Op, lhs, rhs)
	case *CastExpr:
		src := simplifyNode(repl, policy, expr.Src, contrib)
		return NewCastExpr(src, expr.Width, expr.Signed)
	case *ConcatExpr:
		msb := simplifyNode(repl, policy, expr.MSB, contrib)
		lsb := simplifyNode(repl, policy, expr.LSB, contrib)
		return NewConcatExpr(msb, lsb)
	case *ExtractExpr:
		src := simplifyNode(repl, policy, expr.Expr, contrib)
		return NewExtractExpr(src, expr.Offset, expr.Width)
	case *NotExpr:
		src := simplifyNode(repl, policy, expr.Expr, contrib)
		return NewNotExpr(src)
	case *NotOptimizedExpr:
		src := simplifyNode(repl, policy, expr.Src, contrib)
		return NewNotOptimizedExpr(src)
	case *ReadExpr:
		idx := simplifyNode(repl, policy, expr.Index, contrib)
		return NewReadExpr(expr.Array, idx)
	case *SelectExpr:
		if policy == SimplifyPolicySimple {
			return expr
		}
		cond := simplifyNode(repl, policy, expr.Cond, contrib)
		if c, ok := cond.(*ConstantExpr); ok {
			if c.IsTrue() {
				return simplifyNode(repl, policy, expr.True, contrib)
			}
			return simplifyNode(repl, policy, expr.False, contrib)
		}
		trueExpr := simplifyNode(repl, policy, expr.True, contrib)
		falseExpr := simplifyNode(repl, policy, expr.False, contrib)
		return NewSelectExpr(cond, trueExpr, falseExpr)
	default:
		panic("unreachable")
	}
}

// DependencyMap records, for each surviving constraint, the transitive set
// of original constraints it was derived from — used when lemmas or
// validity cores must be lifted back to the original constraint set.
type DependencyMap map[string][]Expr

// Simplify iterates SimplifyExpr to a fixpoint over the whole constraint
// set, per spec.md §4.C5. Each round rebuilds the replacement map from the
// constraints excluding the one under rewrite (so a plain constraint p
// never rewrites to the tautology p=true against itself), rewrites every
// constraint, splits any resulting top-level AND, and repeats until no
// constraint changes. Returns the simplified constraints and a dependency
// map from each surviving constraint's string form to the originals it
// depends on.
func Simplify(constraints []Expr, policy SimplifyPolicy) ([]Expr, DependencyMap) {
	deps := make(DependencyMap)
	for _, c := range constraints {
		deps[c.String()] = []Expr{c}
	}

	current := append([]Expr(nil), constraints...)
	for {
		changed := false
		var next []Expr
		nextDeps := make(DependencyMap)

		for i, c := range current {
			others := make([]Expr, 0, len(current)-1)
			others = append(others, current[:i]...)
			others = append(others, current[i+1:]...)

			rewritten, used := SimplifyExpr(others, c, policy)
			if rewritten.String() != c.String() {
				changed = true
			}

			transitive := map[string]Expr{}
			for _, orig := range deps[c.String()] {
				transitive[orig.String()] = orig
			}
			for _, u := range used {
				for _, orig := range deps[u.String()] {
					transitive[orig.String()] = orig
				}
			}
			var list []Expr
			for _, orig := range transitive {
				list = append(list, orig)
			}

			for _, split := range splitConjunction(rewritten) {
				next = append(next, split)
				nextDeps[split.String()] = list
			}
		}

		current, deps = next, nextDeps
		if !changed {
			return current, deps
		}
	}
}

func splitConjunction(e Expr) []Expr {
	if b, ok := e.(*BinaryExpr); ok && b.Op == AND {
		return append(splitConjunction(b.LHS), splitConjunction(b.RHS)...)
	}
	return []Expr{e}
}

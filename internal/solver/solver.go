// Package solver resolves one type per declaration from a constraint graph.
// Nodes live in an arena keyed by declaration ID; edges are index vectors.
// Solving runs three phases: SCC contraction, bounded symbolic fixpoint,
// and finalization against range analysis.
package solver

import (
	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
)

// ValueRange is an optional pair of signed 64-bit bounds.
type ValueRange struct {
	HasMin bool
	Min    int64
	HasMax bool
	Max    int64
}

// Union widens both bounds in place.
func (r *ValueRange) Union(other ValueRange) {
	if other.HasMin {
		if !r.HasMin || other.Min < r.Min {
			r.Min = other.Min
		}
		r.HasMin = true
	}
	if other.HasMax {
		if !r.HasMax || other.Max > r.Max {
			r.Max = other.Max
		}
		r.HasMax = true
	}
}

// OpKind tags a symbolic arithmetic constraint.
type OpKind int

const (
	OpAdd OpKind = iota
	OpSub
	OpMul
	OpDiv
)

// Node is one declaration's solver state.
type Node struct {
	Decl     *frontend.Decl
	Original ctype.Type
	// Constraint only widens over the node's lifetime.
	Constraint ctype.Type
	Range      ValueRange

	IsFixed             bool
	IsTypedef           bool
	IsPtrOffset         bool
	HasGlobalConstraint bool
	// BlocksUnsigned is set when the declaration was observed holding a
	// negative value; promotion to unsigned candidates is then refused.
	BlocksUnsigned bool

	// BaseExpr is the last expression a constraint was derived from, kept
	// for decltype generation.
	BaseExpr *sitter.Node

	// sources are the declarations whose width must flow into this node
	// (edge direction: target -> source).
	sources []int
}

type symbolicConstraint struct {
	Result, LHS, RHS int
	Op               OpKind
}

// Update is one resolved retyping the rewriter should apply.
type Update struct {
	Decl    *frontend.Decl
	Node    *Node
	NewType ctype.Type
}

// Graph is the per-TU constraint graph. It is consumed exactly once by
// Solve.
type Graph struct {
	oracle   *ctype.Oracle
	nodes    []*Node
	byDecl   map[int]int
	symbolic []symbolicConstraint
}

// New creates a graph using the given type oracle for widening decisions.
func New(oracle *ctype.Oracle) *Graph {
	return &Graph{oracle: oracle, byDecl: make(map[int]int)}
}

// AddNode registers a declaration. Re-adding is idempotent and only
// monotonically strengthens IsFixed / IsTypedef.
func (g *Graph) AddNode(d *frontend.Decl, current ctype.Type, isFixed, isTypedef bool) {
	if d == nil {
		return
	}
	if idx, ok := g.byDecl[d.ID]; ok {
		n := g.nodes[idx]
		if isFixed {
			n.IsFixed = true
		}
		if isTypedef {
			n.IsTypedef = true
		}
		return
	}
	g.byDecl[d.ID] = len(g.nodes)
	g.nodes = append(g.nodes, &Node{
		Decl:       d,
		Original:   current,
		Constraint: current,
		IsFixed:    isFixed,
		IsTypedef:  isTypedef,
	})
}

// NodeFor returns the solver node for a declaration, if registered.
func (g *Graph) NodeFor(d *frontend.Decl) (*Node, bool) {
	if d == nil {
		return nil, false
	}
	idx, ok := g.byDecl[d.ID]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// AddEdge records that source's width must flow into target (assignment
// `target = source`). Unregistered endpoints and self-loops are ignored.
func (g *Graph) AddEdge(target, source *frontend.Decl) {
	if target == nil || source == nil || target.ID == source.ID {
		return
	}
	ti, ok1 := g.byDecl[target.ID]
	si, ok2 := g.byDecl[source.ID]
	if !ok1 || !ok2 {
		return
	}
	g.nodes[ti].sources = append(g.nodes[ti].sources, si)
}

// AddConstraint widens the node's constraint type toward candidate and
// remembers the deriving expression.
func (g *Graph) AddConstraint(d *frontend.Decl, candidate ctype.Type, baseExpr *sitter.Node) {
	n, ok := g.NodeFor(d)
	if !ok {
		return
	}
	n.Constraint = ctype.WiderInteger(n.Constraint, candidate)
	if baseExpr != nil {
		n.BaseExpr = baseExpr
	}
}

// AddGlobalConstraint seeds a node from the cross-TU fact map. Unlike
// AddConstraint it creates the node on demand: the global map can mention
// declarations before the traversal reaches them.
func (g *Graph) AddGlobalConstraint(d *frontend.Decl, globalType ctype.Type) {
	if d == nil {
		return
	}
	if _, ok := g.byDecl[d.ID]; !ok {
		g.AddNode(d, globalType, false, d.Kind == frontend.KindTypedef)
	}
	n, _ := g.NodeFor(d)
	n.Constraint = ctype.WiderInteger(n.Constraint, globalType)
	n.HasGlobalConstraint = true
}

// AddLoopComparisonConstraint ties a loop induction variable to its bound:
// the bound's type constrains the variable, and when the bound reduces to a
// named declaration an edge bound -> induction keeps them in one component.
func (g *Graph) AddLoopComparisonConstraint(induction *frontend.Decl, boundType ctype.Type, boundDecl *frontend.Decl, boundExpr *sitter.Node) {
	g.AddConstraint(induction, boundType, boundExpr)
	if boundDecl != nil {
		g.AddEdge(boundDecl, induction)
	}
}

// AddRangeConstraint unions a value range into the node.
func (g *Graph) AddRangeConstraint(d *frontend.Decl, r ValueRange) {
	n, ok := g.NodeFor(d)
	if !ok {
		return
	}
	n.Range.Union(r)
	if r.HasMin && r.Min < 0 {
		n.BlocksUnsigned = true
	}
}

// AddSymbolicConstraint defers `result = lhs op rhs` to the fixpoint phase.
func (g *Graph) AddSymbolicConstraint(result *frontend.Decl, op OpKind, lhs, rhs *frontend.Decl) {
	if result == nil || lhs == nil || rhs == nil {
		return
	}
	ri, ok1 := g.byDecl[result.ID]
	li, ok2 := g.byDecl[lhs.ID]
	rhi, ok3 := g.byDecl[rhs.ID]
	if !ok1 || !ok2 || !ok3 {
		return
	}
	g.symbolic = append(g.symbolic, symbolicConstraint{Result: ri, LHS: li, RHS: rhi, Op: op})
}

// MarkPointerOffset floors the node at ptrdiff_t during solve.
func (g *Graph) MarkPointerOffset(d *frontend.Decl) {
	if n, ok := g.NodeFor(d); ok {
		n.IsPtrOffset = true
	}
}

// MarkNegative records that the declaration held a negative value.
func (g *Graph) MarkNegative(d *frontend.Decl) {
	if n, ok := g.NodeFor(d); ok {
		n.BlocksUnsigned = true
	}
}

const maxSymbolicIterations = 25

// Solve runs the three phases and returns updates keyed by declaration ID.
// It never fails; unknown types degrade to the original.
func (g *Graph) Solve() map[int]Update {
	g.contractComponents()
	g.runSymbolicFixpoint()
	return g.finalize()
}

// contractComponents unifies every strongly connected component: widest
// constraint, unioned range, sticky fixed and pointer-offset flags.
func (g *Graph) contractComponents() {
	for _, comp := range tarjanSCC(g.nodes) {
		if len(comp) == 0 {
			continue
		}
		var merged ctype.Type
		var mergedRange ValueRange
		isFixed := false
		isPtrOffset := false
		blocksUnsigned := false
		for _, idx := range comp {
			n := g.nodes[idx]
			merged = ctype.WiderInteger(merged, n.Constraint)
			mergedRange.Union(n.Range)
			if n.IsFixed {
				isFixed = true
			}
			if n.IsPtrOffset {
				isPtrOffset = true
			}
			if n.BlocksUnsigned {
				blocksUnsigned = true
			}
		}
		if isPtrOffset {
			merged = ctype.WiderInteger(merged, ctype.PtrdiffT)
		}
		for _, idx := range comp {
			n := g.nodes[idx]
			n.Constraint = merged
			n.Range = mergedRange
			if isFixed {
				n.IsFixed = true
			}
			if isPtrOffset {
				n.IsPtrOffset = true
			}
			if blocksUnsigned {
				n.BlocksUnsigned = true
			}
		}
	}
	// Width still flows along cross-component edges: a target must be at
	// least as wide as each of its sources.
	changed := true
	for iter := 0; changed && iter < maxSymbolicIterations; iter++ {
		changed = false
		for _, n := range g.nodes {
			for _, si := range n.sources {
				wider := ctype.WiderInteger(n.Constraint, g.nodes[si].Constraint)
				if !wider.Equal(n.Constraint) {
					n.Constraint = wider
					changed = true
				}
			}
		}
	}
}

// runSymbolicFixpoint propagates `result = lhs op rhs` constraints forward
// and backward until quiescence, bounded at 25 iterations.
func (g *Graph) runSymbolicFixpoint() {
	changed := true
	for iter := 0; changed && iter < maxSymbolicIterations; iter++ {
		changed = false
		for _, sc := range g.symbolic {
			result := g.nodes[sc.Result]
			lhs := g.nodes[sc.LHS]
			rhs := g.nodes[sc.RHS]

			opType := ctype.WiderInteger(lhs.Constraint, rhs.Constraint)
			if lhs.IsPtrOffset || rhs.IsPtrOffset {
				opType = ctype.WiderInteger(opType, ctype.PtrdiffT)
			}

			// Forward: the result must hold the operation's width.
			newResult := ctype.WiderInteger(result.Constraint, opType)
			if !newResult.Equal(result.Constraint) {
				result.Constraint = newResult
				changed = true
			}

			// Backward: a wider result drags non-fixed operands up with it.
			if !lhs.IsFixed && result.Constraint.Width > lhs.Constraint.Width {
				newL := ctype.WiderInteger(lhs.Constraint, result.Constraint)
				if !newL.Equal(lhs.Constraint) {
					lhs.Constraint = newL
					changed = true
				}
			}
			if !rhs.IsFixed && result.Constraint.Width > rhs.Constraint.Width {
				newR := ctype.WiderInteger(rhs.Constraint, result.Constraint)
				if !newR.Equal(rhs.Constraint) {
					rhs.Constraint = newR
					changed = true
				}
			}
		}
	}
}

func (g *Graph) finalize() map[int]Update {
	updates := make(map[int]Update)
	for _, n := range g.nodes {
		if n.IsFixed {
			continue
		}

		var optimal ctype.Type
		switch {
		case n.IsPtrOffset:
			optimal = ctype.WiderInteger(n.Constraint, ctype.PtrdiffT)
		case n.Range.HasMax:
			optimal = ctype.ForRange(n.Range.HasMin, n.Range.Min, n.Range.HasMax, n.Range.Max, n.Original)
		default:
			optimal = n.Constraint
		}
		// Symbolic and global constraints are floors even when range
		// analysis shrinks the type.
		optimal = ctype.WiderInteger(optimal, n.Constraint)

		if optimal.IsNull() || !optimal.Scalar {
			continue
		}
		if n.BlocksUnsigned && !optimal.Signed {
			// Observed negative: refuse the unsigned promotion outright.
			continue
		}
		if optimal.Equal(n.Original) {
			continue
		}
		updates[n.Decl.ID] = Update{Decl: n.Decl, Node: n, NewType: optimal}
	}
	return updates
}

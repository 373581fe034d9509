package mesh

import (
	"sort"
)

// Edge is an undirected edge with A < B.
type Edge struct {
	A, B int
}

func undirected(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// edgeUse counts how often an undirected edge appears and in which direction.
type edgeUse struct {
	count   int
	forward int // uses as A->B
	faces   []int
}

// Topology summarizes the edge structure of a mesh.
type Topology struct {
	Edges        int
	Boundary     []Edge // edges used by exactly one face
	NonManifold  []Edge // edges used by more than two faces
	Inconsistent []Edge // edges used twice in the same direction
}

// Watertight reports whether every edge borders exactly two faces.
func (t Topology) Watertight() bool {
	return len(t.Boundary) == 0 && len(t.NonManifold) == 0
}

// WindingConsistent reports whether every two-face edge is traversed in
// opposite directions by its faces.
func (t Topology) WindingConsistent() bool {
	return len(t.Inconsistent) == 0
}

// Analyze computes the edge topology of m.
func Analyze(m *Mesh) Topology {
	uses := edgeUses(m.Faces)
	t := Topology{Edges: len(uses)}
	for e, u := range uses {
		switch {
		case u.count == 1:
			t.Boundary = append(t.Boundary, e)
		case u.count > 2:
			t.NonManifold = append(t.NonManifold, e)
		case u.forward != 1:
			t.Inconsistent = append(t.Inconsistent, e)
		}
	}
	sortEdges(t.Boundary)
	sortEdges(t.NonManifold)
	sortEdges(t.Inconsistent)
	return t
}

// IsWatertight is a shorthand for Analyze(m).Watertight().
func IsWatertight(m *Mesh) bool {
	return Analyze(m).Watertight()
}

func edgeUses(faces []Face) map[Edge]*edgeUse {
	uses := make(map[Edge]*edgeUse, len(faces)*3/2)
	for fi, f := range faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			e := undirected(a, b)
			u := uses[e]
			if u == nil {
				u = &edgeUse{}
				uses[e] = u
			}
			u.count++
			if a < b {
				u.forward++
			}
			u.faces = append(u.faces, fi)
		}
	}
	return uses
}

// boundaryLoops chains the directed boundary half-edges of faces into
// closed loops. Each loop lists vertices in the direction the existing
// faces traverse them. Half-edges that cannot be chained unambiguously
// (a vertex with several outgoing boundary edges) are skipped.
func boundaryLoops(faces []Face, boundary []Edge) [][]int {
	onBoundary := make(map[Edge]bool, len(boundary))
	for _, e := range boundary {
		onBoundary[e] = true
	}

	next := make(map[int]int)
	ambiguous := make(map[int]bool)
	for _, f := range faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			if !onBoundary[undirected(a, b)] {
				continue
			}
			if _, dup := next[a]; dup {
				ambiguous[a] = true
			}
			next[a] = b
		}
	}

	starts := make([]int, 0, len(next))
	for v := range next {
		starts = append(starts, v)
	}
	sort.Ints(starts)

	visited := make(map[int]bool)
	var loops [][]int
	for _, start := range starts {
		if visited[start] || ambiguous[start] {
			continue
		}
		loop := []int{start}
		seen := map[int]bool{start: true}
		closed := false
		for v := next[start]; ; v = next[v] {
			if v == start {
				closed = true
				break
			}
			if seen[v] || ambiguous[v] {
				break
			}
			if _, ok := next[v]; !ok {
				break
			}
			seen[v] = true
			loop = append(loop, v)
		}
		for v := range seen {
			visited[v] = true
		}
		if closed && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
}

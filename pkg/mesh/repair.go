package mesh

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMergeTolerance is the vertex merge distance in millimeters.
const DefaultMergeTolerance = 1e-5

// maxFillPasses bounds the fill-and-reanalyze loop in Repair.
const maxFillPasses = 4

// RepairOptions tunes Repair.
type RepairOptions struct {
	// MergeTolerance is the distance within which vertices are welded.
	MergeTolerance float64
}

// DefaultRepairOptions returns the options used by the generation pipeline.
func DefaultRepairOptions() RepairOptions {
	return RepairOptions{MergeTolerance: DefaultMergeTolerance}
}

// IntegrityWarning reports a solid that is still open or inconsistently
// wound after repair. It is not fatal: the mesh is still usable for export.
type IntegrityWarning struct {
	Mesh              string
	BoundaryEdges     int
	NonManifoldEdges  int
	InconsistentEdges int
}

func (w *IntegrityWarning) Error() string {
	return fmt.Sprintf("mesh %q not watertight after repair: %d boundary, %d non-manifold, %d inconsistently wound edges",
		w.Mesh, w.BoundaryEdges, w.NonManifoldEdges, w.InconsistentEdges)
}

// RepairReport describes what Repair changed.
type RepairReport struct {
	Name              string
	VerticesBefore    int
	FacesBefore       int
	VerticesAfter     int
	FacesAfter        int
	MergedVertices    int
	RemovedFaces      int
	FilledHoles       int
	FlippedFaces      int
	Watertight        bool
	WindingConsistent bool
	Warnings          []error
}

// Repair returns a normalized copy of m: coincident vertices are welded,
// degenerate and duplicate faces dropped, holes filled where possible and
// winding made consistent and outward. The input is not modified.
// Repair is idempotent.
func Repair(m *Mesh, opts RepairOptions) (*Mesh, RepairReport) {
	if opts.MergeTolerance <= 0 {
		opts.MergeTolerance = DefaultMergeTolerance
	}
	out := m.Clone()
	report := RepairReport{
		Name:           m.Name,
		VerticesBefore: len(m.Vertices),
		FacesBefore:    len(m.Faces),
	}

	report.MergedVertices = out.mergeVertices(opts.MergeTolerance)
	minArea := opts.MergeTolerance * opts.MergeTolerance
	report.RemovedFaces = out.removeDegenerateFaces(minArea)
	report.RemovedFaces += out.removeDuplicateFaces()
	out.compact()

	// Orient first: boundary loops only chain when the faces around a
	// hole agree on direction.
	report.FlippedFaces = out.orient(false)
	topo := Analyze(out)
	for pass := 0; pass < maxFillPasses && len(topo.Boundary) > 0; pass++ {
		filled := out.fillHoles(topo.Boundary, minArea)
		if filled == 0 {
			break
		}
		report.FilledHoles += filled
		topo = Analyze(out)
	}
	if !topo.WindingConsistent() || (topo.Watertight() && out.SignedVolume() < 0) {
		report.FlippedFaces += out.orient(topo.Watertight())
		topo = Analyze(out)
	}

	report.Watertight = topo.Watertight()
	report.WindingConsistent = topo.WindingConsistent()
	if !report.Watertight || !report.WindingConsistent {
		report.Warnings = append(report.Warnings, &IntegrityWarning{
			Mesh:              out.Name,
			BoundaryEdges:     len(topo.Boundary),
			NonManifoldEdges:  len(topo.NonManifold),
			InconsistentEdges: len(topo.Inconsistent),
		})
	}
	report.VerticesAfter = len(out.Vertices)
	report.FacesAfter = len(out.Faces)
	return out, report
}

// Weld returns a copy of m with coincident vertices merged and faces that
// collapsed to an edge or point dropped. Nothing else changes, so the
// result shows the topology the file was meant to have.
func Weld(m *Mesh, tolerance float64) *Mesh {
	if tolerance <= 0 {
		tolerance = DefaultMergeTolerance
	}
	out := m.Clone()
	out.mergeVertices(tolerance)
	out.removeDegenerateFaces(0)
	out.compact()
	return out
}

type gridKey [3]int64

// quantize returns the tolerance cell of v. Points within tol of each
// other land in the same or adjacent cells.
func quantize(v r3.Vec, tol float64) gridKey {
	return gridKey{
		int64(math.Floor(v.X / tol)),
		int64(math.Floor(v.Y / tol)),
		int64(math.Floor(v.Z / tol)),
	}
}

// mergeVertices welds each vertex onto the nearest earlier survivor within
// tol of it. Survivors are bucketed by tolerance cell and the neighbouring
// cells are searched too, so a pair straddling a cell edge still welds.
// Survivors end up more than tol apart, which keeps a second pass a no-op.
func (m *Mesh) mergeVertices(tol float64) int {
	remap := make([]int, len(m.Vertices))
	cells := make(map[gridKey][]int, len(m.Vertices))
	vertices := make([]r3.Vec, 0, len(m.Vertices))
	var colors []color.RGBA
	if m.Colors != nil {
		colors = make([]color.RGBA, 0, len(m.Colors))
	}

	nearest := func(v r3.Vec, key gridKey) int {
		best, bestDist := -1, tol
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, idx := range cells[gridKey{key[0] + dx, key[1] + dy, key[2] + dz}] {
						d := r3.Norm(r3.Sub(v, vertices[idx]))
						if d < bestDist || (d == bestDist && (best < 0 || idx < best)) {
							best, bestDist = idx, d
						}
					}
				}
			}
		}
		return best
	}

	for i, v := range m.Vertices {
		key := quantize(v, tol)
		if idx := nearest(v, key); idx >= 0 {
			remap[i] = idx
			continue
		}
		idx := len(vertices)
		cells[key] = append(cells[key], idx)
		remap[i] = idx
		vertices = append(vertices, v)
		if colors != nil {
			colors = append(colors, m.Colors[i])
		}
	}

	merged := len(m.Vertices) - len(vertices)
	if merged == 0 {
		return 0
	}
	for i, f := range m.Faces {
		m.Faces[i] = Face{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
	m.Vertices = vertices
	m.Colors = colors
	return merged
}

func (m *Mesh) removeDegenerateFaces(minArea float64) int {
	kept := m.Faces[:0]
	removed := 0
	for _, f := range m.Faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] || m.triangleArea(f) <= minArea {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	m.Faces = kept
	return removed
}

func (m *Mesh) triangleArea(f Face) float64 {
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
}

// removeDuplicateFaces drops faces that reuse the vertex set of an earlier
// face, regardless of winding.
func (m *Mesh) removeDuplicateFaces() int {
	seen := make(map[[3]int]bool, len(m.Faces))
	kept := m.Faces[:0]
	removed := 0
	for _, f := range m.Faces {
		key := [3]int{f[0], f[1], f[2]}
		sort.Ints(key[:])
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		kept = append(kept, f)
	}
	m.Faces = kept
	return removed
}

// compact drops unreferenced vertices, preserving the order of the rest.
func (m *Mesh) compact() {
	used := make([]bool, len(m.Vertices))
	for _, f := range m.Faces {
		used[f[0]], used[f[1]], used[f[2]] = true, true, true
	}
	remap := make([]int, len(m.Vertices))
	n := 0
	for i, u := range used {
		if !u {
			continue
		}
		remap[i] = n
		m.Vertices[n] = m.Vertices[i]
		if m.Colors != nil {
			m.Colors[n] = m.Colors[i]
		}
		n++
	}
	if n == len(m.Vertices) {
		return
	}
	m.Vertices = m.Vertices[:n]
	if m.Colors != nil {
		m.Colors = m.Colors[:n]
	}
	for i, f := range m.Faces {
		m.Faces[i] = Face{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
}

// fillHoles closes boundary loops with a triangle fan from the loop's
// first vertex. A loop whose fan would contain a degenerate triangle is
// left open. It returns the number of loops closed.
func (m *Mesh) fillHoles(boundary []Edge, minArea float64) int {
	filled := 0
	for _, loop := range boundaryLoops(m.Faces, boundary) {
		fan := make([]Face, 0, len(loop)-2)
		ok := true
		for i := 1; i+1 < len(loop); i++ {
			f := Face{loop[0], loop[i+1], loop[i]}
			if m.triangleArea(f) <= minArea {
				ok = false
				break
			}
			fan = append(fan, f)
		}
		if !ok {
			continue
		}
		m.Faces = append(m.Faces, fan...)
		filled++
	}
	return filled
}

// orient makes winding consistent across each edge-connected component by
// propagating from the component's first face, then keeps whichever of
// the two orientations agrees with more of the input faces. When closed
// is set, components with negative volume are turned inside out instead.
// It returns the number of faces whose winding changed.
func (m *Mesh) orient(closed bool) int {
	uses := edgeUses(m.Faces)
	flipped := make([]bool, len(m.Faces))
	visited := make([]bool, len(m.Faces))

	flip := func(fi int) {
		f := m.Faces[fi]
		m.Faces[fi] = Face{f[0], f[2], f[1]}
		flipped[fi] = !flipped[fi]
	}
	// hasDirected reports whether face f traverses a->b.
	hasDirected := func(f Face, a, b int) bool {
		for k := 0; k < 3; k++ {
			if f[k] == a && f[(k+1)%3] == b {
				return true
			}
		}
		return false
	}

	for seed := range m.Faces {
		if visited[seed] {
			continue
		}
		component := []int{seed}
		visited[seed] = true
		for qi := 0; qi < len(component); qi++ {
			fi := component[qi]
			f := m.Faces[fi]
			for k := 0; k < 3; k++ {
				a, b := f[k], f[(k+1)%3]
				u := uses[undirected(a, b)]
				if u.count != 2 {
					continue
				}
				nb := u.faces[0]
				if nb == fi {
					nb = u.faces[1]
				}
				if visited[nb] {
					continue
				}
				if hasDirected(m.Faces[nb], a, b) {
					flip(nb)
				}
				visited[nb] = true
				component = append(component, nb)
			}
		}

		var changed int
		for _, fi := range component {
			if flipped[fi] {
				changed++
			}
		}
		if 2*changed > len(component) {
			for _, fi := range component {
				flip(fi)
			}
		}

		if closed {
			var vol float64
			for _, fi := range component {
				f := m.Faces[fi]
				a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
				vol += r3.Dot(a, r3.Cross(b, c))
			}
			if vol < 0 {
				for _, fi := range component {
					flip(fi)
				}
			}
		}
	}

	n := 0
	for _, f := range flipped {
		if f {
			n++
		}
	}
	return n
}

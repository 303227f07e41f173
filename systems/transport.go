package systems

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/manifold/components"
)

const (
	// PositionTolerance is how close to an edge a chart coordinate must be
	// to count as lying on it. Particles entering a face are pushed
	// 2*PositionTolerance inside.
	PositionTolerance = 1e-8

	// TimeTolerance is the remaining budget below which a step is done.
	TimeTolerance = 1e-8

	// HitTolerance is the smallest accepted time to reach an edge.
	HitTolerance = 1e-12

	// MaxCrossings bounds the face transitions within one step.
	MaxCrossings = 10000
)

// ViolationKind classifies geometric anomalies found during transport.
type ViolationKind string

const (
	OutsideBefore    ViolationKind = "outside_before"
	OutsideAfter     ViolationKind = "outside_after"
	NoEdgeHit        ViolationKind = "no_edge_hit"
	UnresolvedEdge   ViolationKind = "unresolved_edge"
	TooManyCrossings ViolationKind = "too_many_crossings"
	BoundaryEdge     ViolationKind = "boundary_edge"
)

// Fatal reports whether the anomaly ended the particle's step early.
func (k ViolationKind) Fatal() bool {
	return k == NoEdgeHit || k == TooManyCrossings
}

// Geometric reports whether the anomaly indicates broken numerics rather
// than a particle legitimately reaching the mesh boundary.
func (k ViolationKind) Geometric() bool {
	return k != BoundaryEdge
}

var (
	ErrNoEdgeHit        = errors.New("no edge reachable within the time budget")
	ErrTooManyCrossings = errors.New("too many face crossings in one step")
)

// Violation describes an anomaly at a particular chart position.
type Violation struct {
	Kind     ViolationKind
	Face     int
	Local    r2.Vec
	Velocity r2.Vec
	Budget   float64 // time left when it happened
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s on face %d at (%g, %g), local velocity (%g, %g), budget %g",
		v.Kind, v.Face, v.Local.X, v.Local.Y, v.Velocity.X, v.Velocity.Y, v.Budget)
}

func (v *Violation) Unwrap() error {
	switch v.Kind {
	case NoEdgeHit:
		return ErrNoEdgeHit
	case TooManyCrossings:
		return ErrTooManyCrossings
	}
	return nil
}

// Walk summarizes one transport call.
type Walk struct {
	Crossings int
	Elapsed   float64 // sum of the time advanced in every face
	Issues    []Violation
}

func (w *Walk) report(kind ViolationKind, s *components.Surface, v r2.Vec, budget float64) *Violation {
	w.Issues = append(w.Issues, Violation{Kind: kind, Face: s.Face, Local: s.Local, Velocity: v, Budget: budget})
	return &w.Issues[len(w.Issues)-1]
}

// Move transports p by its velocity for dt and refreshes its embedded
// position.
func Move(geo Geometry, p *Particle, dt float64) (Walk, error) {
	w, err := Transport(geo, &p.Surface, p.Vel, dt)
	p.Pos = geo.Embed(p.Surface.Face, p.Surface.Local)
	return w, err
}

// Transport advances s along the tangential part of vel for dt, crossing
// faces as needed. The chart coordinate stays inside a triangle of the
// mesh throughout. A non-nil error is a *Violation that stopped the walk
// early; s then holds the last valid position.
func Transport(geo Geometry, s *components.Surface, vel r3.Vec, dt float64) (Walk, error) {
	var w Walk

	n := geo.Normal(s.Face)
	tangent := r3.Sub(vel, r3.Scale(r3.Dot(n, vel), n))
	v := geo.LocalVector(s.Face, tangent)

	if !geo.InTriangle(s.Local) {
		w.report(OutsideBefore, s, v, dt)
	}

	budget := dt
	for budget > TimeTolerance {
		next := r2.Add(s.Local, r2.Scale(budget, v))
		if geo.InTriangle(next) {
			s.Local = r2.Vec{X: math.Max(next.X, 0), Y: math.Max(next.Y, 0)}
			w.Elapsed += budget
			budget = 0
			break
		}

		edge, hit := firstHit(s.Local, v, budget)
		if edge < 0 {
			viol := *w.report(NoEdgeHit, s, v, budget)
			return w, &viol
		}

		s.Local = snapToEdge(r2.Add(s.Local, r2.Scale(hit, v)), edge)
		budget -= hit
		w.Elapsed += hit

		neighbor := geo.Neighbor(s.Face, edge)
		if neighbor < 0 {
			w.report(BoundaryEdge, s, v, budget)
			nudgeInside(&s.Local)
			break
		}

		v = geo.TransitionVector(s.Face, edge, v)
		s.Local = geo.TransitionPoint(s.Face, edge, s.Local)
		s.Face = neighbor
		w.Crossings++

		if !nudgeInside(&s.Local) {
			w.report(UnresolvedEdge, s, v, budget)
		}
		if w.Crossings >= MaxCrossings {
			viol := *w.report(TooManyCrossings, s, v, budget)
			return w, &viol
		}
	}

	if !geo.InTriangle(s.Local) {
		w.report(OutsideAfter, s, v, 0)
	}
	return w, nil
}

// firstHit returns the edge the ray q + t*v reaches first with
// HitTolerance < t <= budget, or -1 if there is none. A point within
// PositionTolerance of an edge it is moving out through hits that edge
// at t = 0.
func firstHit(q, v r2.Vec, budget float64) (int, float64) {
	// distance to each edge constraint and the rate it closes at
	gap := [3]float64{q.Y, 1 - q.X - q.Y, q.X}
	rate := [3]float64{-v.Y, v.X + v.Y, -v.X}

	edge, best := -1, budget
	for e := range gap {
		if !(rate[e] > 0) {
			continue
		}
		if gap[e] < PositionTolerance {
			if edge < 0 || best > 0 {
				edge, best = e, 0
			}
			continue
		}
		if t := gap[e] / rate[e]; t > HitTolerance && t <= best {
			edge, best = e, t
		}
	}
	return edge, best
}

// snapToEdge removes drift so q lies exactly on the given edge.
func snapToEdge(q r2.Vec, edge int) r2.Vec {
	switch edge {
	case 0:
		q.Y = 0
	case 1:
		q.X = 1 - q.Y
	case 2:
		q.X = 0
	}
	return q
}

// nudgeInside moves a point lying on an edge strictly inside the
// triangle. It reports false, leaving q untouched, if q is on no edge.
func nudgeInside(q *r2.Vec) bool {
	onEdge := math.Abs(q.X) < PositionTolerance ||
		math.Abs(q.Y) < PositionTolerance ||
		math.Abs(1-q.X-q.Y) < PositionTolerance
	if !onEdge {
		return false
	}

	const lo = 2 * PositionTolerance
	q.X = math.Max(q.X, lo)
	q.Y = math.Max(q.Y, lo)
	if excess := q.X + q.Y - (1 - lo); excess > 0 {
		if q.X >= q.Y {
			q.X -= excess
		} else {
			q.Y -= excess
		}
	}
	return true
}

package camera

import (
	"context"
	"sync"

	"github.com/altazimuth/lx200bridge/mount"
)

// ScriptedSolver replays a fixed sequence of solve results. After the
// script runs out it keeps returning the final entry. It stands in for
// a real solver in tests and demos.
type ScriptedSolver struct {
	mu      sync.Mutex
	results []mount.SolveResult
	next    int
}

func NewScriptedSolver(results ...mount.SolveResult) *ScriptedSolver {
	return &ScriptedSolver{results: results}
}

func (s *ScriptedSolver) Solve(ctx context.Context, img mount.Image, focalLengthMM float64) (mount.SolveResult, error) {
	if err := ctx.Err(); err != nil {
		return mount.SolveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return mount.SolveResult{CapturedAt: img.TakenAt}, nil
	}
	res := s.results[s.next]
	if s.next < len(s.results)-1 {
		s.next++
	}
	if res.CapturedAt.IsZero() {
		res.CapturedAt = img.TakenAt
	}
	return res, nil
}

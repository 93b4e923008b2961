package solver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goplan/domain/casebase"
	"goplan/domain/core"
	"goplan/domain/planning"
	"goplan/domain/trajectory"
)

// ============================================================================
// CALIBRATION
// ============================================================================

// ThresholdTally records the leave-one-out mismatch count for one candidate
// infeasibility threshold.
type ThresholdTally struct {
	Threshold  int `json:"threshold"`
	Mismatches int `json:"mismatches"`
}

// CalibrationReport summarizes threshold calibration over the case base.
type CalibrationReport struct {
	// Tallies holds one entry per candidate threshold in ascending order.
	Tallies []ThresholdTally `json:"tallies"`

	// Chosen is the threshold with the fewest mismatches, first occurrence
	// on ties.
	Chosen int `json:"chosen"`

	// Accuracy is the leave-one-out prediction accuracy at Chosen.
	Accuracy float64 `json:"accuracy"`

	// NeighborDistance gives quartiles of each case's nearest-neighbor
	// distance, a density measure for the case base.
	NeighborDistance stats.Quartiles `json:"neighbor_distance"`
}

// ============================================================================
// NEAREST NEIGHBOR META-SOLVER
// ============================================================================

// NearestNeighbor predicts feasibility from a case base and warm starts an
// internal scratch engine from the most similar solved case. The guide value
// is the query descriptor; nil delegates to the internal engine unguided.
type NearestNeighbor struct {
	engine    ScratchEngine
	cases     []casebase.Case
	dim       int
	knn       int
	threshold int
	report    *CalibrationReport
	logger    *zap.Logger
}

// NewNearestNeighbor builds the meta-solver and calibrates the infeasibility
// threshold by leave-one-out evaluation over the case base. Calibration needs
// knn of at least two; candidate thresholds range over [1, knn).
func NewNearestNeighbor(engine ScratchEngine, cases []casebase.Case, knn int, logger *zap.Logger) (*NearestNeighbor, error) {
	s, err := newNearestNeighbor(engine, cases, knn, logger)
	if err != nil {
		return nil, err
	}
	threshold, report, err := calibrate(s.cases, knn, s.logger)
	if err != nil {
		return nil, err
	}
	s.threshold = threshold
	s.report = report
	return s, nil
}

// NewNearestNeighborWithThreshold builds the meta-solver with an explicit
// threshold, skipping calibration.
func NewNearestNeighborWithThreshold(engine ScratchEngine, cases []casebase.Case, knn, threshold int, logger *zap.Logger) (*NearestNeighbor, error) {
	s, err := newNearestNeighbor(engine, cases, knn, logger)
	if err != nil {
		return nil, err
	}
	if threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d would predict every query infeasible", core.ErrNoThreshold, threshold)
	}
	s.threshold = threshold
	return s, nil
}

func newNearestNeighbor(engine ScratchEngine, cases []casebase.Case, knn int, logger *zap.Logger) (*NearestNeighbor, error) {
	if engine == nil {
		return nil, fmt.Errorf("nearest-neighbor solver requires an internal engine")
	}
	dim, err := casebase.ValidateUniform(cases)
	if err != nil {
		return nil, err
	}
	if knn < 1 {
		return nil, fmt.Errorf("knn must be positive, got %d", knn)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NearestNeighbor{
		engine: engine,
		cases:  cases,
		dim:    dim,
		knn:    knn,
		logger: logger.Named("nearest-neighbor"),
	}, nil
}

// Threshold returns the active infeasibility threshold.
func (s *NearestNeighbor) Threshold() int { return s.threshold }

// Calibration returns the calibration report, or nil when an explicit
// threshold was supplied.
func (s *NearestNeighbor) Calibration() *CalibrationReport { return s.report }

// Prepare forwards the problem to the internal engine.
func (s *NearestNeighbor) Prepare(prob *planning.Problem) error {
	return s.engine.Prepare(prob)
}

// Run answers one query. Without a query descriptor it delegates unguided.
// With one, it retrieves the knn nearest cases; if enough of them are
// unsolved the query is predicted infeasible and the internal engine is never
// invoked. Otherwise the nearest solved case warm starts exactly one attempt.
func (s *NearestNeighbor) Run(ctx context.Context, query []float64) (*Result, error) {
	if query == nil {
		var noGuide *trajectory.Trajectory
		return s.engine.Run(ctx, noGuide)
	}
	if len(query) != s.dim {
		return nil, core.NewDimensionError(s.dim, len(query))
	}

	order := nearestOrder(s.cases, query)
	if len(order) > s.knn {
		order = order[:s.knn]
	}
	unsolved := 0
	for _, j := range order {
		if !s.cases[j].Solved() {
			unsolved++
		}
	}
	if unsolved >= s.threshold {
		s.logger.Info("predicted infeasible, skipping solve",
			zap.Int("unsolved_neighbors", unsolved),
			zap.Int("threshold", s.threshold))
		return Abnormal(), nil
	}

	for _, j := range order {
		if s.cases[j].Solved() {
			s.logger.Debug("warm starting from case",
				zap.String("case_id", s.cases[j].ID.String()))
			return s.engine.Run(ctx, s.cases[j].Traj)
		}
	}
	return Abnormal(), nil
}

// calibrate runs leave-one-out evaluation: for every candidate threshold t,
// predict each case infeasible iff at least t of its knn nearest neighbors
// (excluding itself) are unsolved, and count mismatches against the case's
// own outcome. Neighbor lookups are shared across thresholds and run in
// parallel over cases; the base is read-only here.
func calibrate(cases []casebase.Case, knn int, logger *zap.Logger) (int, *CalibrationReport, error) {
	if knn < 2 {
		return 0, nil, fmt.Errorf("%w: knn %d leaves no candidate thresholds", core.ErrNoThreshold, knn)
	}
	n := len(cases)
	unsolvedCounts := make([]int, n)
	nnDists := make([]float64, n)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range cases {
		g.Go(func() error {
			order := nearestOrder(cases, cases[i].Desc)
			// order[0] is the case itself at distance zero
			neighbors := order[1:min(knn+1, len(order))]
			count := 0
			for _, j := range neighbors {
				if !cases[j].Solved() {
					count++
				}
			}
			unsolvedCounts[i] = count
			if len(order) > 1 {
				nnDists[i] = math.Sqrt(sqDist(cases[order[1]].Desc, cases[i].Desc))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	tallies := make([]ThresholdTally, 0, knn-1)
	best, bestMismatches := 0, n+1
	for t := 1; t < knn; t++ {
		mismatches := 0
		for i := range cases {
			seemsInfeasible := unsolvedCounts[i] >= t
			actuallyInfeasible := !cases[i].Solved()
			if seemsInfeasible != actuallyInfeasible {
				mismatches++
			}
		}
		tallies = append(tallies, ThresholdTally{Threshold: t, Mismatches: mismatches})
		if mismatches < bestMismatches {
			best, bestMismatches = t, mismatches
		}
	}

	report := &CalibrationReport{
		Tallies:  tallies,
		Chosen:   best,
		Accuracy: 1 - float64(bestMismatches)/float64(n),
	}
	if q, err := stats.Quartile(stats.Float64Data(nnDists)); err == nil {
		report.NeighborDistance = q
	}
	logger.Info("calibrated infeasibility threshold",
		zap.Int("threshold", best),
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("cases", n))
	return best, report, nil
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// nearestOrder returns case indices sorted ascending by squared Euclidean
// distance to desc. Ties keep index order.
func nearestOrder(cases []casebase.Case, desc []float64) []int {
	dists := make([]float64, len(cases))
	order := make([]int, len(cases))
	for i := range cases {
		dists[i] = sqDist(cases[i].Desc, desc)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })
	return order
}

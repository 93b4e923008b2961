// Command solvebench benchmarks case-guided planning over a scenario world.
//
// It builds (or loads) a case base for the configured world, calibrates a
// nearest-neighbor meta-solver over it, then times a batch of sampled
// queries and writes the per-query outcomes to an xlsx report.
//
// Set CASEDB_DSN to persist the case base in Postgres between runs;
// without it the cases are regenerated in memory each time.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goplan/adapters/casedb"
	"goplan/domain/casebase"
	"goplan/internal/testkit"
	"goplan/ports"
	"goplan/solver"
	"goplan/solver/descent"
)

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (omit for the built-in benchmark)")
	out := flag.String("out", "", "xlsx report path (overrides the scenario)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	config := zap.NewDevelopmentConfig()
	if *verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using system environment")
	}

	if err := run(*scenarioPath, *out, logger); err != nil {
		logger.Fatal("benchmark failed", zap.Error(err))
	}
}

func run(scenarioPath, out string, logger *zap.Logger) error {
	ctx := context.Background()

	sc := DefaultScenario()
	if scenarioPath != "" {
		var err error
		sc, err = LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
	}
	if out != "" {
		sc.Report = out
	}

	timeout, err := sc.timeout()
	if err != nil {
		return err
	}
	world, err := sc.buildWorld()
	if err != nil {
		return err
	}
	logger.Info("scenario loaded",
		zap.String("name", sc.Name),
		zap.String("world", sc.World.Kind),
		zap.Int("cases", sc.Cases),
		zap.Int("queries", sc.Queries))

	cases, err := loadOrGenerateCases(ctx, sc, world, logger)
	if err != nil {
		return err
	}

	factory := func() (solver.ScratchEngine, error) {
		return descent.New(solver.Config{MaxCalls: sc.Solver.MaxCalls}, sc.Solver.Waypoints), nil
	}
	racer, err := solver.NewParallel(factory, sc.Solver.Workers, logger)
	if err != nil {
		return err
	}
	nn, err := solver.NewNearestNeighbor(racer, cases, sc.KNN, logger)
	if err != nil {
		return err
	}
	if report := nn.Calibration(); report != nil {
		logger.Info("case base calibrated",
			zap.Int("threshold", report.Chosen),
			zap.Float64("accuracy", report.Accuracy))
	}

	runner := solver.NewRunner[[]float64](solver.Config{Timeout: timeout}, nn, logger)

	// Queries draw from their own stream so they do not mirror the goals
	// the case generator sampled from sc.Seed.
	rng := rand.New(rand.NewSource(sc.Seed + 1))
	rows := make([]benchRow, 0, sc.Queries)
	for i := 0; i < sc.Queries; i++ {
		goal := world.SampleGoal(rng)
		prob, err := world.Problem(goal)
		if err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		if err := runner.Setup(prob); err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		res, err := runner.Solve(ctx, goal)
		if err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		row := newBenchRow(i, goal, res)
		rows = append(rows, row)
		logger.Debug("query finished",
			zap.Int("query", i),
			zap.Bool("solved", row.Solved),
			zap.Float64("elapsed_ms", row.ElapsedMS))
	}

	solved := 0
	for _, r := range rows {
		if r.Solved {
			solved++
		}
	}
	logger.Info("benchmark finished",
		zap.Int("solved", solved),
		zap.Int("queries", len(rows)),
		zap.String("report", sc.Report))

	return writeReport(sc.Report, rows, nn.Calibration())
}

// loadOrGenerateCases prefers the Postgres case store when CASEDB_DSN is
// set, topping it up and saving when it holds fewer cases than the
// scenario asks for. Without a DSN the case base is generated in memory.
func loadOrGenerateCases(ctx context.Context, sc Scenario, world testkit.ProblemSource, logger *zap.Logger) ([]casebase.Case, error) {
	generate := func(count int, seed int64) ([]casebase.Case, error) {
		gen := testkit.NewCaseGenerator(testkit.GeneratorConfig{
			Count:     count,
			MaxCalls:  sc.Solver.MaxCalls,
			Waypoints: sc.Solver.Waypoints,
			Seed:      seed,
		})
		return gen.Generate(ctx, world)
	}

	dsn := os.Getenv("CASEDB_DSN")
	if dsn == "" {
		return generate(sc.Cases, sc.Seed)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to case store: %w", err)
	}
	defer db.Close()

	store, err := casedb.NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return topUpCases(ctx, store, sc, generate)
}

// topUpCases loads the stored case base and generates the shortfall when
// it holds fewer cases than the scenario asks for, saving the fresh ones.
func topUpCases(ctx context.Context, store ports.CaseStore, sc Scenario, generate func(count int, seed int64) ([]casebase.Case, error)) ([]casebase.Case, error) {
	cases, err := store.Load(ctx, sc.Cases)
	if err != nil {
		return nil, err
	}
	if len(cases) >= sc.Cases {
		return cases, nil
	}

	// Offset the seed so a top-up does not replay the goals already stored.
	fresh, err := generate(sc.Cases-len(cases), sc.Seed+int64(len(cases)))
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return append(cases, fresh...), nil
}

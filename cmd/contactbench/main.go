package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/contactbench/contactbench/contactbench"
	"github.com/contactbench/contactbench/contactbench/bench"
	"github.com/contactbench/contactbench/contactbench/cancel"
	"github.com/contactbench/contactbench/contactbench/exec"
	"github.com/contactbench/contactbench/contactbench/plan"
	"github.com/contactbench/contactbench/contactbench/registry"
	"github.com/contactbench/contactbench/contactbench/report"
	"github.com/contactbench/contactbench/contactbench/seed"
	"github.com/contactbench/contactbench/contactbench/store"
	"github.com/contactbench/contactbench/contactbench/store/postgres"
	"github.com/contactbench/contactbench/contactbench/store/sqlite"
)

// paramArgs is a custom flag type for repeatable --param flags
type paramArgs []string

func (p *paramArgs) String() string { return strings.Join(*p, ",") }
func (p *paramArgs) Set(v string) error {
	*p = append(*p, v)
	return nil
}

var log = logrus.New()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "seed":
		handleSeed(ctx, os.Args[2:])
	case "bench":
		handleBench(ctx, os.Args[2:])
	case "query":
		handleQuery(ctx, os.Args[2:])
	case "stats":
		handleStats(ctx, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("contactbench - query translation and benchmark harness for the contact store")
	fmt.Println("\nUsage:")
	fmt.Println("  contactbench seed  -db <path|dsn> [--backend sqlite|postgres] [-n <count>] [--rand-seed <n>]")
	fmt.Println("  contactbench bench -db <path|dsn> [--backend sqlite|postgres] [--reps <n>] [--deadline <dur>] [--out <dir>]")
	fmt.Println("  contactbench query -db <path|dsn> [--backend sqlite|postgres] --param key=value ... [--deadline <dur>]")
	fmt.Println("  contactbench stats -db <path|dsn> [--backend sqlite|postgres]")
	fmt.Println("\nExamples:")
	fmt.Println("  contactbench seed -db contacts.db -n 10000")
	fmt.Println("  contactbench query -db contacts.db --param first_name__icontains=John --param ordering=-created")
	fmt.Println("  contactbench bench -db contacts.db --reps 5 --out benchmark_results")
}

// openableStore is what the CLI needs beyond the executor-facing interface:
// seed loading goes through the goqu handle.
type openableStore interface {
	store.Store
	Goqu() *goqu.Database
}

func openStore(ctx context.Context, backend, dsn string, reg *registry.Registry) (openableStore, error) {
	switch backend {
	case "sqlite":
		return sqlite.Open(ctx, dsn, reg)
	case "postgres":
		return postgres.Open(ctx, dsn, reg)
	default:
		return nil, contactbench.ConfigError(fmt.Sprintf("unknown backend %q (want sqlite or postgres)", backend))
	}
}

func handleSeed(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	db := fs.String("db", "", "database path (sqlite) or DSN (postgres)")
	backend := fs.String("backend", "sqlite", "storage backend: sqlite or postgres")
	n := fs.Int("n", 10000, "number of contacts to generate")
	randSeed := fs.Int64("rand-seed", time.Now().UnixNano(), "random seed for fixture generation")
	_ = fs.Parse(args)

	if *db == "" {
		log.Fatal("seed: -db is required")
	}

	reg := registry.Contacts()
	st, err := openStore(ctx, *backend, *db, reg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	rng := rand.New(rand.NewSource(*randSeed))
	contacts := seed.Generate(*n, rng, time.Now())

	start := time.Now()
	if err := seed.Load(ctx, st.Goqu(), contacts); err != nil {
		log.WithError(err).Fatal("load fixtures")
	}
	log.WithFields(logrus.Fields{
		"contacts": *n,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("seeded")
}

func handleBench(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	db := fs.String("db", "", "database path (sqlite) or DSN (postgres)")
	backend := fs.String("backend", "sqlite", "storage backend: sqlite or postgres")
	reps := fs.Int("reps", 3, "repetitions per scenario")
	deadline := fs.Duration("deadline", contactbench.DefaultQueryTimeout, "per-run deadline")
	outDir := fs.String("out", "benchmark_results", "output directory for JSON/CSV reports")
	_ = fs.Parse(args)

	if *db == "" {
		log.Fatal("bench: -db is required")
	}

	reg := registry.Contacts()
	st, err := openStore(ctx, *backend, *db, reg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	opts := bench.DefaultOptions()
	opts.Repetitions = *reps
	opts.Deadline = *deadline
	opts.Log = log

	h := bench.NewHarness(reg, st, exec.New(exec.DefaultOptions()), opts)
	results, err := h.Run(ctx, bench.DefaultCatalogue())
	if err != nil {
		log.WithError(err).Fatal("harness run")
	}

	rep := report.Aggregate(results, time.Now())
	for _, s := range rep.Summaries {
		log.WithFields(logrus.Fields{
			"scenario": s.Scenario,
			"runs":     s.Runs,
			"mean_ms":  fmt.Sprintf("%.2f", s.MeanMS),
			"p95_ms":   fmt.Sprintf("%.2f", s.P95MS),
			"statuses": s.StatusCounts,
		}).Info("scenario summary")
	}

	if err := exportReport(rep, *outDir); err != nil {
		log.WithError(err).Fatal("export report")
	}
	log.WithField("dir", *outDir).Info("reports written")
}

func exportReport(rep *report.Report, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := rep.GeneratedAt.Format("20060102_150405")

	jf, err := os.Create(filepath.Join(dir, "benchmark_results_"+stamp+".json"))
	if err != nil {
		return err
	}
	defer jf.Close()
	if err := rep.WriteJSON(jf); err != nil {
		return err
	}

	cf, err := os.Create(filepath.Join(dir, "benchmark_results_"+stamp+".csv"))
	if err != nil {
		return err
	}
	defer cf.Close()
	return rep.WriteCSV(cf)
}

func handleQuery(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	db := fs.String("db", "", "database path (sqlite) or DSN (postgres)")
	backend := fs.String("backend", "sqlite", "storage backend: sqlite or postgres")
	deadline := fs.Duration("deadline", contactbench.DefaultQueryTimeout, "query deadline")
	var params paramArgs
	fs.Var(&params, "param", "query parameter key=value (repeatable)")
	_ = fs.Parse(args)

	if *db == "" {
		log.Fatal("query: -db is required")
	}

	raw := make(map[string]string, len(params))
	for _, kv := range params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			log.Fatalf("query: bad --param %q (want key=value)", kv)
		}
		raw[k] = v
	}

	reg := registry.Contacts()
	st, err := openStore(ctx, *backend, *db, reg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	p, err := plan.Build(reg, registry.EntityAppUser, raw)
	if err != nil {
		log.WithError(err).Fatal("build plan")
	}

	tok := cancel.WithTimeout(time.Now(), *deadline)
	out := exec.New(exec.DefaultOptions()).Execute(ctx, st, p, tok)
	if out.Metrics.Status != exec.StatusSuccess {
		log.WithFields(logrus.Fields{
			"status": out.Metrics.Status,
		}).WithError(out.Err).Fatal("query did not succeed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"total":       out.Total,
		"rows":        out.Rows,
		"duration_ms": float64(out.Metrics.Duration.Microseconds()) / 1000.0,
		"query_count": out.Metrics.Statements,
	})
}

func handleStats(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	db := fs.String("db", "", "database path (sqlite) or DSN (postgres)")
	backend := fs.String("backend", "sqlite", "storage backend: sqlite or postgres")
	_ = fs.Parse(args)

	if *db == "" {
		log.Fatal("stats: -db is required")
	}

	reg := registry.Contacts()
	st, err := openStore(ctx, *backend, *db, reg)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		log.WithError(err).Fatal("stats")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]int64{
		"total_contacts":             stats.TotalContacts,
		"contacts_with_address":      stats.WithAddress,
		"contacts_with_relationship": stats.WithRelationship,
	})
}

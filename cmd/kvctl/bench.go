package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/common/benchmark"
	"github.com/intellect4all/kvkernel/hashindex"
	"github.com/intellect4all/kvkernel/kvengine"
	"github.com/intellect4all/kvkernel/lsm"
)

var (
	benchQuick       bool
	benchWorkload    string
	benchDuration    time.Duration
	benchConcurrency int
	benchEngine      string
)

func init() {
	benchCmd.Flags().BoolVar(&benchQuick, "quick", false, "run quick workloads (shorter duration, fewer keys)")
	benchCmd.Flags().StringVar(&benchWorkload, "workload", "all", "workload to run (all, or a workload name from the set)")
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 60*time.Second, "override duration for each workload")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 8, "override concurrency for each workload")
	benchCmd.Flags().StringVar(&benchEngine, "engine", "compare", "engine to benchmark: kvkernel, hashindex, lsm, or compare")
	rootCmd.AddCommand(benchCmd)
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark kvkernel against the hashindex and lsm comparison engines",
	Long: `bench drives common/benchmark's workload generator against one engine
or, in "compare" mode (the default), all three: the kvkernel transactional
engine (via kvengine.Adapter), hashindex, and lsm — reporting throughput,
latency percentiles, and write/space amplification side by side.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var configs []benchmark.Config
		if benchQuick {
			configs = benchmark.QuickWorkloads()
		} else {
			configs = benchmark.StandardWorkloads()
		}

		if cmd.Flags().Changed("duration") {
			for i := range configs {
				configs[i].Duration = benchDuration
			}
		}
		if cmd.Flags().Changed("concurrency") {
			for i := range configs {
				configs[i].Concurrency = benchConcurrency
			}
		}

		if benchWorkload != "all" {
			filtered := make([]benchmark.Config, 0, 1)
			for _, c := range configs {
				if c.Name == benchWorkload {
					filtered = append(filtered, c)
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("unknown workload: %s", benchWorkload)
			}
			configs = filtered
		}

		switch benchEngine {
		case "kvkernel":
			return runSingleEngineBench("kvkernel", configs, newKVKernelEngine)
		case "hashindex":
			return runSingleEngineBench("hashindex", configs, newHashIndexEngine)
		case "lsm":
			return runSingleEngineBench("lsm", configs, newLSMEngine)
		case "compare":
			return runComparisonBench(configs)
		default:
			return fmt.Errorf("unknown engine: %s (must be kvkernel, hashindex, lsm, or compare)", benchEngine)
		}
	},
}

func newKVKernelEngine() (common.StorageEngine, func(), error) {
	dir, err := os.MkdirTemp("", "kvctl-bench-kvkernel-*")
	if err != nil {
		return nil, nil, err
	}
	e, err := kvengine.NewAdapter(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return e, func() { e.Close(); os.RemoveAll(dir) }, nil
}

func newHashIndexEngine() (common.StorageEngine, func(), error) {
	dir, err := os.MkdirTemp("", "kvctl-bench-hashindex-*")
	if err != nil {
		return nil, nil, err
	}
	cfg := hashindex.DefaultConfig(dir)
	cfg.SyncOnWrite = false
	e, err := hashindex.New(cfg)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return e, func() { e.Close(); os.RemoveAll(dir) }, nil
}

func newLSMEngine() (common.StorageEngine, func(), error) {
	dir, err := os.MkdirTemp("", "kvctl-bench-lsm-*")
	if err != nil {
		return nil, nil, err
	}
	e, err := lsm.NewAdapter(lsm.DefaultConfig(dir))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return e, func() { e.Close(); os.RemoveAll(dir) }, nil
}

func runSingleEngineBench(name string, configs []benchmark.Config, factory func() (common.StorageEngine, func(), error)) error {
	engine, cleanup, err := factory()
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("=== %s benchmark ===\n", name)
	for _, c := range configs {
		fmt.Printf("\nRunning: %s\n", c.Name)
		b := benchmark.NewBenchmark(engine, c)
		result, err := b.Run()
		if err != nil {
			fmt.Printf("benchmark failed: %v\n", err)
			continue
		}
		fmt.Printf("  throughput: %.0f ops/sec, write amp: %.2fx, space amp: %.2fx\n",
			result.OpsPerSec, result.WriteAmplification, result.SpaceAmplification)
	}
	return nil
}

func runComparisonBench(configs []benchmark.Config) error {
	fmt.Println("=== comparing kvkernel, hashindex, and lsm ===")

	kv, kvCleanup, err := newKVKernelEngine()
	if err != nil {
		return err
	}
	defer kvCleanup()

	hi, hiCleanup, err := newHashIndexEngine()
	if err != nil {
		return err
	}
	defer hiCleanup()

	ls, lsCleanup, err := newLSMEngine()
	if err != nil {
		return err
	}
	defer lsCleanup()

	engines := map[string]common.StorageEngine{
		"kvkernel":  kv,
		"HashIndex": hi,
		"LSM-Tree":  ls,
	}

	suite := benchmark.NewComparisonSuite()
	suite.SetWorkloads(configs)
	results := suite.RunComparison(engines)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("COMPARISON RESULTS")
	fmt.Println(strings.Repeat("=", 80))
	suite.PrintComparisonTable(results)
	return nil
}

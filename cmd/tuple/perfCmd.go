package tuple

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dTuple/cmd/util"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for tuple store servers",
		Long:    "Runs concurrent benchmarks through the connection pool and prints throughput and latency percentiles",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfSkip             = make([]string, 0)
	perfDumpMetrics      = false

	// latency timers of all benchmarks
	perfRegistry = gometrics.NewRegistry()
	percentiles  = []float64{0.5, 0.9, 0.99, 0.999}
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. eval,mixed)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the argument for the call-large test should be (in KB)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "dump-metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the driver metrics in Prometheus format after the run"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfDumpMetrics = viper.GetBool("dump-metrics")
	return nil
}

// benchmark is one named workload, op is called concurrently
type benchmark struct {
	name string
	op   func(ctx context.Context, counter int) error
}

func runPerf(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()

	fmt.Println("Performance testing tool for tuple store servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// warm up, this runs the first reconnect cycle
	if err := rpcClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	benchmarks := []benchmark{
		{"ping", func(ctx context.Context, _ int) error {
			return rpcClient.Ping(ctx)
		}},
		{"call", func(ctx context.Context, i int) error {
			_, err := rpcClient.Call(ctx, "echo", "test", i)
			return err
		}},
		{"call-large", func(ctx context.Context, _ int) error {
			_, err := rpcClient.Call(ctx, "echo", largeValue)
			return err
		}},
		{"eval", func(ctx context.Context, i int) error {
			_, err := rpcClient.Eval(ctx, "return ...", i)
			return err
		}},
		{"mixed", func(ctx context.Context, i int) error {
			var err error
			switch i % 3 {
			case 0:
				err = rpcClient.Ping(ctx)
			case 1:
				_, err = rpcClient.Call(ctx, "echo", i)
			case 2:
				_, err = rpcClient.Eval(ctx, "return 1, 'two'")
			}
			return err
		}},
	}

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := runBenchmark(bm)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	stats := rpcClient.Stats()
	fmt.Printf("\nPool: %s, %d/%d connections alive, %d reconnect cycles\n",
		stats.State, stats.Alive, stats.Connections, stats.ReconnectCycles)

	if perfDumpMetrics {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, false)
		rpcClient.Pool().WriteMetrics(os.Stdout)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func runBenchmark(bm benchmark) testing.BenchmarkResult {
	if shouldSkip(bm.name) {
		return testing.BenchmarkResult{}
	}

	timer := gometrics.GetOrRegisterTimer(bm.name, perfRegistry)
	errs := gometrics.GetOrRegisterCounter(bm.name+".errors", perfRegistry)

	return testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			ctx := context.Background()
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bm.op(ctx, counter); err != nil {
					errs.Inc(1)
					util.Logger.Warningf("(%s) - request failed: %v", bm.name, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-14sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	timer := gometrics.GetOrRegisterTimer(test, perfRegistry)
	ps := timer.Percentiles(percentiles)
	errs := gometrics.GetOrRegisterCounter(test+".errors", perfRegistry).Count()

	fmt.Printf("%-14s%.0f ops/sec\tp50 %s\tp90 %s\tp99 %s\tp99.9 %s\terrors %d\n", test, opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(ps[3]), errs)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	config := util.GetClientConfig()

	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "OpsPerSec", "P50", "P99", "Errors", "Skipped",
		"Endpoints", "ConnectionsPerEndpoint", "Strategy", "RetryCount",
		"Serializer", "Transport", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	endpoints := make([]string, len(config.Transport.Endpoints))
	for i, ep := range config.Transport.Endpoints {
		endpoints[i] = string(ep)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		ps := gometrics.GetOrRegisterTimer(test, perfRegistry).Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			strconv.FormatInt(gometrics.GetOrRegisterCounter(test+".errors", perfRegistry).Count(), 10),
			skipped,
			strings.Join(endpoints, ";"),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			string(config.Strategy),
			strconv.Itoa(config.Transport.RetryCount),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}

package client

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramforge/ramforge/cmd/util"
	dbutil "github.com/ramforge/ramforge/lib/db/util"
	"github.com/ramforge/ramforge/master"
	"github.com/ramforge/ramforge/rpc/common"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool against a master server",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the payload for the write-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different object IDs to spread the load across"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// objectIDForKey derives a stable objectID from a human-readable key so
// the benchmark can keep referring to "keys" the way the old store-based
// perf tool did, while actually addressing the master's objectID space.
func objectIDForKey(key string) uint64 {
	return uint64(dbutil.HashString(key, 0))
}

func runPerf(_ *cobra.Command, _ []string) error {
	tableID := util.GetTableID()

	fmt.Println("Performance testing tool for ramforge masters")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Table: %d, Threads: %d\n", tableID, perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	writeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("write") {
			return
		}
		getKey, iter := getKeys("write")

		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := masterClient.Remove(tableID, objectIDForKey(k), master.RejectRules{}); err != nil {
					log.Printf("(write) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := masterClient.Write(tableID, objectIDForKey(getKey(counter)), []byte("test"), master.RejectRules{}); err != nil {
					log.Printf("(write) - error writing key: %v\n", err)
				}
				counter++
			}
		})
	})
	results["write"] = writeResult
	printResult("write", writeResult)

	writeLargeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("write-large") {
			return
		}
		largeValue := make([]byte, perfLargeValueSizeKB*1024)
		getKey, iter := getKeys("write-large")

		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := masterClient.Remove(tableID, objectIDForKey(k), master.RejectRules{}); err != nil {
					log.Printf("(write-large) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := masterClient.Write(tableID, objectIDForKey(getKey(counter)), largeValue, master.RejectRules{}); err != nil {
					log.Printf("(write-large) - error writing key: %v\n", err)
				}
				counter++
			}
		})
	})
	results["write-large"] = writeLargeResult
	printResult("write-large", writeLargeResult)

	readResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("read") {
			return
		}
		getKey, iter := getKeys("read")
		iter(func(k string) {
			if _, err := masterClient.Write(tableID, objectIDForKey(k), []byte("test"), master.RejectRules{}); err != nil {
				log.Printf("(read) - error priming key: %v\n", err)
			}
		})
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := masterClient.Remove(tableID, objectIDForKey(k), master.RejectRules{}); err != nil {
					log.Printf("(read) - error removing key: %v\n", err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := masterClient.Read(tableID, objectIDForKey(getKey(counter)), master.RejectRules{}); err != nil {
					log.Printf("(read) - error reading key: %v\n", err)
				}
				counter++
			}
		})
	})
	results["read"] = readResult
	printResult("read", readResult)

	removeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("remove") {
			return
		}
		getKey, iter := getKeys("remove")
		iter(func(k string) {
			if _, err := masterClient.Write(tableID, objectIDForKey(k), []byte("test"), master.RejectRules{}); err != nil {
				log.Printf("(remove) - error priming key: %v\n", err)
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := masterClient.Remove(tableID, objectIDForKey(getKey(counter)), master.RejectRules{}); err != nil {
					log.Printf("(remove) - error removing key: %v\n", err)
				}
				counter++
			}
		})
	})
	results["remove"] = removeResult
	printResult("remove", removeResult)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string { return keys[i%perfKeySpread] }
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}
	return getKey, iterateKeys
}

func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"TableID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "false"
		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(uint64(util.GetTableID()), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}

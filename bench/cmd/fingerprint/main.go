// Package bench — fingerprint/main.go
//
// Fingerprint throughput benchmark.
//
// Measures Extract+Signature latency over a synthetic population of
// error reports, shaped to resemble the mix the intake endpoint sees in
// production: a handful of distinct error templates, each repeated with
// volatile substrings (ids, timestamps, line numbers) so the feature
// cleaning step in internal/fingerprint has real normalization work to
// do rather than hashing identical strings every iteration.
//
// Output CSV columns:
//   iteration, latency_us, feature_count
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/lqt0707/monitor/internal/fingerprint"
)

var stackTemplate = `at renderWidget (https://cdn.example.com/app.%d.js:%d:%d)
at dispatchEvent (https://cdn.example.com/app.%d.js:%d:%d)
at Object.invokeHandler (https://cdn.example.com/vendor.%d.js:%d:%d)`

var templates = []struct {
	errType string
	message string
}{
	{"js_error", "Cannot read properties of undefined (reading '%d')"},
	{"js_error", "TypeError: %s is not a function"},
	{"promise_rejection", "Unhandled promise rejection: request %s timed out"},
	{"http_error", "GET /api/v%d/users/%d failed with status 503"},
}

func main() {
	iterations := flag.Int("iterations", 50000, "Number of fingerprint computations to measure")
	outputFile := flag.String("output", "fingerprint_raw.csv", "Output CSV file path")
	k := flag.Int("k", fingerprint.DefaultK, "MinHash signature width")
	seed := flag.Int64("seed", 1, "Random seed for synthetic error generation")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	opts := fingerprint.DefaultOptions()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"iteration", "latency_us", "feature_count"})

	latencies := make([]int, *iterations)
	for i := 0; i < *iterations; i++ {
		in := syntheticInput(rng)

		start := time.Now()
		feats := fingerprint.Extract(in, opts)
		_ = fingerprint.Signature(feats, *k)
		latency := time.Since(start)

		latencyUs := int(latency.Microseconds())
		latencies[i] = latencyUs
		_ = w.Write([]string{
			strconv.Itoa(i),
			strconv.Itoa(latencyUs),
			strconv.Itoa(len(feats)),
		})
	}

	p50, p95, p99 := percentiles(latencies)
	fmt.Printf("Fingerprint Throughput Results (%d iterations, k=%d)\n", *iterations, *k)
	fmt.Printf("  p50: %dus\n", p50)
	fmt.Printf("  p95: %dus\n", p95)
	fmt.Printf("  p99: %dus\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)
}

func syntheticInput(rng *rand.Rand) fingerprint.Input {
	t := templates[rng.Intn(len(templates))]
	message := fmt.Sprintf(t.message, rng.Intn(1000), rng.Intn(1000))
	stack := fmt.Sprintf(stackTemplate,
		rng.Intn(20), rng.Intn(5000), rng.Intn(80),
		rng.Intn(20), rng.Intn(5000), rng.Intn(80),
		rng.Intn(20), rng.Intn(5000), rng.Intn(80))
	return fingerprint.Input{
		Type:    t.errType,
		Message: message,
		Stack:   stack,
		File:    fmt.Sprintf("https://cdn.example.com/app.%d.js", rng.Intn(20)),
	}
}

// percentiles sorts a copy of latencies and returns the p50/p95/p99 marks.
func percentiles(latencies []int) (p50, p95, p99 int) {
	sorted := make([]int, len(latencies))
	copy(sorted, latencies)
	sort.Ints(sorted)

	n := len(sorted)
	if n == 0 {
		return 0, 0, 0
	}
	return sorted[n*50/100], sorted[min(n-1, n*95/100)], sorted[min(n-1, n*99/100)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

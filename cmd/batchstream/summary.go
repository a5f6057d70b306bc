package main

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/23skdu/longbow-batchstream/internal/bench"
)

var printer = message.NewPrinter(language.English)

// printSummary writes one row per queue.
func printSummary(w io.Writer, results []bench.Result) {
	printer.Fprintf(w, "%-20s %8s %10s %10s %10s %10s %10s\n", "queue", "repeats", "avg ms", "p50 ms", "p90 ms", "p99 ms", "stddev")
	var iterations int
	for _, r := range results {
		printer.Fprintf(w, "%-20s %8d %10.3f %10.3f %10.3f %10.3f %10.3f\n",
			r.Queue, r.Repeats, r.AvgMs, r.Stats.P50, r.Stats.P90, r.Stats.P99, r.Stats.StdDev)
		iterations += r.Warmup + r.Repeats
	}
	printer.Fprintf(w, "%d queues, %d passes\n", len(results), iterations)
}

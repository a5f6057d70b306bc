//go:build ignore

// Prints the rows of an Arrow IPC report written by batchstream -report.
//
//	go run scripts/read_report.go results.arrow
package main

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	path := "results.arrow"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open report")
	}
	defer f.Close()

	reader, err := ipc.NewReader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read Arrow stream")
	}
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()
		idx := func(name string) int {
			ids := rec.Schema().FieldIndices(name)
			if len(ids) == 0 {
				log.Fatal().Str("column", name).Msg("Report is missing column")
			}
			return ids[0]
		}
		runIDs := rec.Column(idx("run_id")).(*array.String)
		queues := rec.Column(idx("queue")).(*array.String)
		avg := rec.Column(idx("avg_ms")).(*array.Float64)
		p99 := rec.Column(idx("p99_ms")).(*array.Float64)
		repeats := rec.Column(idx("repeats")).(*array.Int32)

		for i := 0; i < int(rec.NumRows()); i++ {
			log.Info().
				Str("run_id", runIDs.Value(i)).
				Str("queue", queues.Value(i)).
				Int32("repeats", repeats.Value(i)).
				Float64("avg_ms", avg.Value(i)).
				Float64("p99_ms", p99.Value(i)).
				Msg("result")
		}
	}
	if err := reader.Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed while reading report")
	}
}

// Command mkmodel writes a deterministic reference model for the cpu backend.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-batchstream/internal/engine"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	def := engine.DefaultReferenceModel()
	out := flag.String("out", "model", "Directory to write __model__ and __params__ into")
	name := flag.String("name", def.Name, "Model name")
	channels := flag.Int("channels", def.Channels, "Input channels")
	classes := flag.Int("classes", def.Classes, "Output classes")
	seed := flag.Uint64("seed", def.Seed, "Weight initialization seed")
	flag.Parse()

	m := engine.ReferenceModel{Name: *name, Channels: *channels, Classes: *classes, Seed: *seed}
	modelPath, paramsPath, err := engine.WriteReferenceModel(*out, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write reference model")
	}
	log.Info().
		Str("model_file", modelPath).
		Str("params_file", paramsPath).
		Int("classes", m.Classes).
		Msg("Wrote reference model")
}

package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	a := newApp(afero.NewOsFs(), log.Logger)
	if err := newRootCmd(a).Execute(); err != nil {
		log.Error().Err(err).Msg("delayflow")
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/CARBONMOLECULE09/bear-code/outboxworker"
)

func main() {
	if err := outboxworker.Run(); err != nil {
		log.Error().Err(err).Msg("outbox-worker exited with error")
		os.Exit(1)
	}
}

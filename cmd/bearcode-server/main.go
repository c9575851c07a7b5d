package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/CARBONMOLECULE09/bear-code/codeservice"
)

func main() {
	if err := codeservice.Run(); err != nil {
		log.Error().Err(err).Msg("bearcode-server exited with error")
		os.Exit(1)
	}
}

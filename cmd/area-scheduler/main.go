package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/areahq/area-engine/schedulerd"
)

func main() {
	if err := schedulerd.Run(); err != nil {
		log.Error().Err(err).Msg("area-scheduler exited with error")
		os.Exit(1)
	}
}

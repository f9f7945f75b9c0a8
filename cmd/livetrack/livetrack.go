package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/api"
	"github.com/travigo/livetrack/pkg/tracking"
	"github.com/urfave/cli/v2"
)

func main() {
	if os.Getenv("LIVETRACK_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("LIVETRACK_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "livetrack",
		Description: "On demand vehicle tracking from the live position feed",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file, environment variables override its values",
				EnvVars: []string{"LIVETRACK_CONFIG_FILE"},
			},
		},

		Commands: []*cli.Command{
			api.RegisterCLI(),
			tracking.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

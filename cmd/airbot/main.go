// Command airbot runs the flight booking bot on Telegram and HTTP.
package main

import (
	"context"
	"log"

	"github.com/m3rciful/airbot/app/airbot"
	corecmd "github.com/m3rciful/airbot/core/cmd"
	coreconfig "github.com/m3rciful/airbot/core/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "AIRBOT_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.App, error) {
			return airbot.NewApp(ctx, cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}

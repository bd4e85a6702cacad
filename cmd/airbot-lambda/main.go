// Command airbot-lambda serves the bot behind API Gateway.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/m3rciful/airbot/app/airbot"
	coreconfig "github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/serverless"
)

func main() {
	cfg, err := coreconfig.LoadEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// Telegram and the HTTP listener are served by the long-running binary.
	cfg.Telegram.Enabled = false
	cfg.HTTP.Listen = ""

	app, err := airbot.NewApp(context.Background(), cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	h, err := serverless.NewHandler(app.Controller(), cfg.HTTP.BotID)
	if err != nil {
		log.Fatalf("handler: %v", err)
	}
	lambda.Start(h.Handle)
}

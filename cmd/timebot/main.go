// Command timebot runs the Telegram front-end of the activity tracker.
package main

import (
	"fmt"
	"os"

	corebootstrap "github.com/m3rciful/timebot/core/bootstrap"
	corecmd "github.com/m3rciful/timebot/core/cmd"
	"github.com/m3rciful/timebot/internal/bot"
	"github.com/m3rciful/timebot/internal/config"
)

func main() {
	root := corecmd.Command("timebot", "Telegram bot for recording activities", corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := carrier.(*config.AppConfig)
			// The bot keeps no database of its own; storage lives behind the data API.
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: cfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return bot.NewApp(cfg)
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"log"

	corecmd "github.com/m3rciful/roombot/core/cmd"
	"github.com/m3rciful/roombot/internal/bot"
	"github.com/m3rciful/roombot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			return bot.Bootstrap(cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}

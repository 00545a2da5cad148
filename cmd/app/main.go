package main

import (
	"flag"
	"fmt"
	"os"

	"FinFolio/internal/di"
	"FinFolio/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config, print the enabled components and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fail("load config", err)
	}
	if *check {
		printComponents(cfg)
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fail("initialize", err)
	}
	if err := app.Run(); err != nil {
		fail("run", err)
	}
}

func printComponents(cfg *config.Config) {
	fmt.Printf("environment: %s\n", cfg.Environment)
	fmt.Printf("http:        :%d\n", cfg.Server.Port)
	fmt.Printf("storage:     %s\n", cfg.Storage.Backend)
	fmt.Printf("cache:       %s\n", cfg.Analysis.CacheBackend)
	for _, c := range []struct {
		name string
		on   bool
	}{
		{"redis", cfg.NeedsRedis()},
		{"kafka", cfg.Kafka.Enabled},
		{"clickhouse", cfg.ClickHouse.Enabled},
		{"finnhub", cfg.Finnhub.Enabled},
		{"queue", cfg.Analysis.Queue.Enabled},
		{"metrics", cfg.Metrics.Enabled},
		{"log collector", cfg.Log.Collector.Enabled},
	} {
		fmt.Printf("%-12s %t\n", c.name+":", c.on)
	}
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "finfolio: %s: %v\n", stage, err)
	os.Exit(1)
}

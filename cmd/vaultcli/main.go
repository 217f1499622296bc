package main

import (
	"context"
	"log"
	"os"

	"github.com/avelancourt/passguard/internal/vaultcli"
)

func main() {
	ctx := context.Background()

	cfg, err := vaultcli.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	app := vaultcli.NewApp(cfg)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}

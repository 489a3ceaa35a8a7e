package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/artifactory/internal/client"
	"github.com/jgivc/artifactory/internal/client/session"
	"github.com/jgivc/artifactory/internal/config"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
)

func main() {
	cfgFileName := flag.StringP("config", "c", config.DefaultFileName, "Path to config file")
	flag.Parse()

	cfg, err := config.LoadClient(*cfgFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := config.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("ARTIFACTORY CLIENT")

	prompt := session.NewPrompter()
	if err := session.AskServer(prompt, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cl, err := client.New(cfg, afero.NewOsFs(), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.New(cl, prompt, os.Stdout, cfg.ConnectAttempts, log).Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(2)
	}
}

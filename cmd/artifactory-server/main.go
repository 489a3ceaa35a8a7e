package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/artifactory/internal/app"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/config"
	flag "github.com/spf13/pflag"
)

func main() {
	cfgFileName := flag.StringP("config", "c", config.DefaultFileName, "Path to config file")
	flag.Parse()

	app, err := app.New(*cfgFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, common.ErrConfig) {
			os.Exit(1)
		}
		os.Exit(2)
	}

	if err := app.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	c := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer close(done)

		for sig := range c {
			switch sig {
			case syscall.SIGUSR1:
				go app.Index()
			case syscall.SIGUSR2:
				go app.Dump()
			case os.Interrupt, syscall.SIGTERM:
				fmt.Println("Received termination signal. Shutting down...")

				return
			}
		}
	}()

	<-done
	signal.Stop(c)
	app.Stop()
	fmt.Println("done")
}

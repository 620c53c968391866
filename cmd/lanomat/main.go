package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/app"
	"github.com/frankferrari/lanomat/internal/config"
	"github.com/frankferrari/lanomat/internal/logger"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

var version = "dev"

func showBanner() {
	logo := []string{
		" _                                 _   ",
		"| | __ _ _ __   ___  _ __ ___   __ _| |_ ",
		"| |/ _` | '_ \\ / _ \\| '_ ` _ \\ / _` | __|",
		"| | (_| | | | | (_) | | | | | | (_| | |_ ",
		"|_|\\__,_|_| |_|\\___/|_| |_| |_|\\__,_|\\__|",
	}
	width := 46
	border := strings.Repeat("═", width)

	fmt.Printf("\n  %s╔%s╗%s\n", cyan, border, reset)
	for _, line := range logo {
		fmt.Printf("  %s║%s  %-*s%s║%s\n", cyan, yellow, width-2, line, cyan, reset)
	}
	fmt.Printf("  %s╚%s╝%s\n\n", cyan, border, reset)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%slanomat: %v%s\n", red, err, reset)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("lanomat %s\n", version)
		return nil
	}

	showBanner()

	appLog := logger.NewWithOptions(logger.Options{
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		HTTPLogging: cfg.HTTPLogging,
	})

	a, err := app.New(cfg, appLog, clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NoKeyboard {
		fmt.Printf("%sKeyboard shortcuts disabled%s\n\n", yellow, reset)
	} else {
		k := &keyboard{log: appLog, baseURL: a.BaseURL(), quit: stop, out: os.Stdout}
		k.printHelp()
		restore := listenForKeyboard(k)
		defer restore()
	}

	return a.Run(ctx)
}

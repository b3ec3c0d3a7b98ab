package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/mnhsh/digital-capsule/internal/database"
	"github.com/urfave/cli/v3"
)

const (
	ReadHeaderTimeout = 10 * time.Second
	PreviewTimeout    = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "capsule",
		Usage: "Digital time capsule that reveals its entries at a fixed instant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to capsule.toml (default: search ., config, ~/.capsule, /etc/capsule)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the capsule page and follow the entry store",
				Action: serve,
			},
			{
				Name:  "preview",
				Usage: "Read every entry once and print the opened capsule as text",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "html",
						Usage: "Print the rendered HTML instead of text",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: PreviewTimeout,
						Usage: "How long to wait for the store",
					},
				},
				Action: preview,
			},
			{
				Name:   "countdown",
				Usage:  "Print the time left until the reveal",
				Action: countdown,
			},
			{
				Name:  "schema",
				Usage: "Print the SQL schema for the postgres and sqlite drivers",
				Action: func(_ context.Context, _ *cli.Command) error {
					_, err := fmt.Fprint(os.Stdout, database.Schema)
					return err
				},
			},
		},
	}

	return app.Run(ctx, os.Args)
}

func serverError(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

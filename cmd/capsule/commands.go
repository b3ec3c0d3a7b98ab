package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/mnhsh/digital-capsule/internal/config"
	"github.com/mnhsh/digital-capsule/internal/render"
	"github.com/mnhsh/digital-capsule/internal/reveal"
	"github.com/mnhsh/digital-capsule/internal/setup"
	"github.com/mnhsh/digital-capsule/internal/source"
	"github.com/mnhsh/digital-capsule/internal/web"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serve(ctx context.Context, c *cli.Command) error {
	app, err := setup.InitializeApp(ctx, c.Root().String("config"))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()
	zap.ReplaceGlobals(app.Logger)
	logger := app.Logger

	hub := web.NewHub(logger)
	page := web.NewPage(hub, logger)
	renderer := render.NewRenderer(page, logger, app.RendererOptions()...)
	ctrl := reveal.NewController(capsule.NewClock(app.Target), renderer, page, app.Source, logger)

	server := web.NewServer(page, hub, ctrl, pageInfo(app.Config, app.TimeFormat, app.Target),
		app.Config.Admin.Token, logger)
	if app.Config.Admin.Token == "" {
		logger.Info("Admin token not set, force open is disabled")
	}

	srv := &http.Server{
		Addr:              app.Config.Server.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Capsule server started",
			zap.String("addr", srv.Addr),
			zap.Time("reveal", app.Target),
			zap.String("driver", app.Config.Store.Driver))
		return serverError(srv.ListenAndServe())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down capsule server...")

		timeout := time.Duration(app.Config.Server.ShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

func preview(ctx context.Context, c *cli.Command) error {
	app, err := setup.InitializeApp(ctx, c.Root().String("config"))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	entries, err := source.Snapshot(ctx, app.Source)
	if err != nil {
		return fmt.Errorf("failed to read entries: %w", err)
	}

	page := web.NewPage(nil, app.Logger)
	renderer := render.NewRenderer(page, app.Logger, app.RendererOptions()...)
	renderer.Unlock(ctx)
	renderer.Render(ctx, entries)

	var buf bytes.Buffer
	if err := page.WriteHTML(&buf, pageInfo(app.Config, app.TimeFormat, app.Target)); err != nil {
		return err
	}
	if c.Bool("html") {
		_, err = buf.WriteTo(os.Stdout)
		return err
	}

	text, err := html2text.FromString(buf.String())
	if err != nil {
		return fmt.Errorf("failed to convert page to text: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, text)
	return err
}

// countdown needs only the configuration, so it skips the store entirely.
func countdown(_ context.Context, c *cli.Command) error {
	cfg, _, err := config.LoadConfig(c.Root().String("config"))
	if err != nil {
		return err
	}
	target, err := cfg.Reveal.Time()
	if err != nil {
		return err
	}
	tf, err := render.NewTimeFormat(cfg.Reveal.Timezone)
	if err != nil {
		return err
	}

	clock := capsule.NewClock(target)
	left, _ := clock.Tick(time.Now())
	f := left.Fields()

	fmt.Fprintf(os.Stdout, "%s\n", cfg.Reveal.Title)
	fmt.Fprintf(os.Stdout, "Reveal: %s\n", tf.FormatTime(target))
	fmt.Fprintf(os.Stdout, "State:  %s\n", clock.State())
	fmt.Fprintf(os.Stdout, "%s days %s hours %s minutes %s seconds\n", f[0], f[1], f[2], f[3])
	return nil
}

func pageInfo(cfg *config.Config, tf render.TimeFormat, target time.Time) web.Info {
	return web.Info{
		Title:      cfg.Reveal.Title,
		RevealText: tf.FormatTime(target),
		FormURL:    cfg.Reveal.FormURL,
	}
}

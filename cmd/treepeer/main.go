package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/treenet/internal/admin"
	"github.com/danmuck/treenet/internal/config"
	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/peer"
	"github.com/danmuck/treenet/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var _ peer.Connections = (*transport.Registry)(nil)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "treepeer: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("treepeer", flag.ContinueOnError)
	flags, set, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	file, err := loadPeerFile(flags.configPath)
	if err != nil {
		return err
	}
	settings, err := config.Resolve(applyFlags(file, flags, set))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := observability.InitLogger("treepeer", runID)
	observability.RegisterMetrics()

	registry := transport.New(settings.Transport)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn().Err(err).Msg("transport close")
		}
	}()
	if err := registry.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", settings.Transport.ListenAddr, err)
	}

	p, err := peer.New(settings.Peer, registry,
		peer.WithRunID(runID),
		peer.WithLogger(observability.Component("peer", settings.Peer.Self.String())),
		peer.WithMessageHandler(func(d peer.Delivery) {
			fmt.Fprintf(os.Stdout, "[%s] %s\n", d.From, d.Text)
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return p.Run(ctx)
	})
	if settings.Admin.Addr != "" {
		srv := admin.New(settings.Admin, p, observability.Component("admin", settings.Peer.Self.String()))
		g.Go(func() error {
			return srv.Serve(ctx)
		})
	}
	g.Go(func() error {
		return runConsole(ctx, os.Stdin, os.Stdout, p)
	})

	role := "peer"
	if p.IsRoot() {
		role = "root"
	}
	logger.Info().
		Str("self", settings.Peer.Self.String()).
		Str("root", settings.Peer.Root.String()).
		Str("role", role).
		Str("admin", settings.Admin.Addr).
		Msg("treepeer started")

	err = g.Wait()
	logger.Info().Err(err).Msg("treepeer stopped")
	return err
}

// noesis - client core for real-time knowledge chat.
//
// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/noesis-chat/client-core/internal/backend"
	"github.com/noesis-chat/client-core/internal/cli"
	"github.com/noesis-chat/client-core/internal/config"
	"github.com/noesis-chat/client-core/internal/conn"
	"github.com/noesis-chat/client-core/internal/graphcache"
	"github.com/noesis-chat/client-core/internal/graphstate"
	"github.com/noesis-chat/client-core/internal/search"
	"github.com/noesis-chat/client-core/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.noesis/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("noesis %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "noesis: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	sessions := store.NewStore()
	if cfg.Storage.ArchiveEnabled {
		path, err := cfg.ResolvedArchivePath()
		if err != nil {
			return fmt.Errorf("resolve archive path: %w", err)
		}
		archive, err := store.OpenArchive(path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()

		restored, err := archive.LoadAll()
		if err != nil {
			return fmt.Errorf("restore sessions: %w", err)
		}
		sessions.LoadFrom(restored)
		sessions.SetArchive(archive)
		log.Printf("restored %d archived conversations", len(restored))
	}

	cache := graphcache.New(cfg.GraphCacheConfig())
	engine := search.NewEngine(
		search.WithWeights(cfg.SearchWeights()),
		search.WithHistoryLimit(cfg.Search.HistoryLimit),
		search.WithMaxResults(cfg.Search.MaxResults),
	)

	api := backend.NewClient().
		WithBaseURL(cfg.Backend.BaseURL).
		WithTimeout(cfg.BackendTimeout()).
		WithMaxRetries(cfg.Backend.MaxRetries)

	manager := conn.NewManager(cfg.Connection.URL, conn.WithConfig(cfg.ConnConfig()))
	defer manager.Disconnect()

	loader := graphstate.NewLoader(api, cache)
	go loader.Run(ctx, manager.Events())

	// Initial connect is best-effort; the shell can retry.
	if err := manager.Connect(ctx); err != nil {
		log.Printf("initial connect failed: %v", err)
	}

	watcher := startConfigWatcher(configPath, manager, cache, engine)
	if watcher != nil {
		defer watcher.Close()
	}

	shell := cli.NewShell(cli.Deps{
		Conn:   manager,
		Back:   api,
		Graph:  loader,
		Cache:  cache,
		Store:  sessions,
		Search: engine,
	})
	shell.Run(ctx)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// startConfigWatcher follows the active config file and pushes reloads
// into the running subsystems. Returns nil when no file exists to
// watch.
func startConfigWatcher(explicitPath string, manager *conn.Manager, cache *graphcache.Cache, engine *search.Engine) *config.Watcher {
	path := explicitPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return nil
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		manager.Configure(cfg.ConnConfig())
		cache.Configure(cfg.GraphCacheConfig())
		engine.Configure(cfg.SearchWeights())
		engine.SetMaxResults(cfg.Search.MaxResults)
		log.Printf("applied config reload from %s", path)
	})
	if err != nil {
		log.Printf("config watch unavailable: %v", err)
		return nil
	}
	return w
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/poiesic/policykb"
	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/config"
	"github.com/poiesic/policykb/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// providerKey is the App.Metadata key holding an ai.AIProvider that
// replaces the configured embedding service.
const providerKey = "provider"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "policykb",
		Usage: "Versioned policy document store with full-text, vector and hybrid retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "policykb.yaml",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to .env file loaded before the configuration",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides store.path)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while the command runs",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a directory of policy snapshot folders",
				ArgsUsage: "[base-dir]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "audit-log",
						Usage: "CSV file to append one row per folder to (overrides ingestion.audit_log)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search policy chunks",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Retrieval mode (fulltext, vector, hybrid, policies)",
						Value:   modeHybrid,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (defaults to retrieval.default_limit)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum cosine similarity (defaults to retrieval.similarity_threshold)",
					},
					&cli.Float64Flag{
						Name:  "weight",
						Usage: "Vector weight for hybrid scores (defaults to retrieval.vector_weight)",
					},
					&cli.BoolFlag{
						Name:  "policies",
						Usage: "Print the distinct policies of the results",
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print the candidates of each hybrid leg",
					},
				},
			},
			{
				Name:      "neighbors",
				Usage:     "Print the chunks around a chunk within its policy",
				ArgsUsage: "<chunk-id>",
				Action:    neighborsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "window",
						Aliases: []string{"w"},
						Usage:   "Chunks on each side (defaults to retrieval.neighbor_window)",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List stored policies",
				Action: listCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a policy with its chunks and images",
				ArgsUsage: "<policy-id>",
				Action:    deleteCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "admin",
						Usage: "ID of the administrator performing the delete",
					},
				},
			},
			{
				Name:      "history",
				Usage:     "Show the update history of a policy, or recent updates",
				ArgsUsage: "[policy-id]",
				Action:    historyCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of recent entries when no policy is given",
						Value: 20,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed stored chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks in each embedding request",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Maximum embedding attempts per batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "only-missing",
						Usage: "Only embed chunks whose embedding failed at ingest",
					},
				},
			},
			{
				Name:   "init-config",
				Usage:  "Write the default configuration to the --config path",
				Action: initConfigCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := parseLogLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

// loadConfig reads the .env file, the YAML configuration and flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Path = db
		cfg.Store.InMemory = false
	}
	return cfg, nil
}

// openKnowledgeBase opens the store and, when --metrics-addr is set, starts
// serving metrics. The returned func closes both.
func openKnowledgeBase(c *cli.Context, cfg *config.Config) (*policykb.KnowledgeBase, func(), error) {
	var opts []policykb.Option
	if provider, ok := c.App.Metadata[providerKey].(ai.AIProvider); ok {
		opts = append(opts, policykb.WithProvider(provider))
	}

	var server *http.Server
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, policykb.WithMetrics(metrics.NewMetrics(reg)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", addr, "err", err)
			}
		}()
	}

	kb, err := policykb.Open(cfg, opts...)
	if err != nil {
		if server != nil {
			server.Close()
		}
		return nil, nil, err
	}
	closer := func() {
		if err := kb.Close(); err != nil {
			slog.Error("error closing knowledge base", "err", err)
		}
		if server != nil {
			server.Close()
		}
	}
	return kb, closer, nil
}

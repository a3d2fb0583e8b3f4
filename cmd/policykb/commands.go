package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/policykb/config"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/reembed"
	"github.com/poiesic/policykb/search"
	"github.com/urfave/cli/v2"
)

const (
	modeFullText = "fulltext"
	modeVector   = "vector"
	modeHybrid   = "hybrid"
	modePolicies = "policies"

	previewLength = 160
)

var errMissingArgument = errors.New("missing argument")

func ingestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	baseDir := c.Args().First()
	if baseDir == "" {
		baseDir = cfg.Ingestion.BaseDir
	}
	if baseDir == "" {
		return fmt.Errorf("%w: base-dir (or ingestion.base_dir)", errMissingArgument)
	}
	if c.IsSet("audit-log") {
		cfg.Ingestion.AuditLog = c.String("audit-log")
	}

	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	summary, err := kb.Ingest(c.Context, baseDir)
	if summary != nil {
		w := c.App.Writer
		fmt.Fprintf(w, "Run %s: %d created, %d updated, %d skipped, %d errored\n",
			summary.RunID, summary.Created, summary.Updated, summary.Skipped, summary.Errored)
		for _, r := range summary.Results {
			if r.Err != nil {
				fmt.Fprintf(w, "  %s: %v\n", r.Folder.Name, r.Err)
			}
		}
		for _, name := range summary.Unrecognized {
			fmt.Fprintf(w, "  %s: not a snapshot folder\n", name)
		}
	}
	return err
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query", errMissingArgument)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	searcher, err := kb.NewSearcher()
	if err != nil {
		return err
	}
	defer searcher.Close()

	limit := cfg.Retrieval.DefaultLimit
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}
	var opts []search.QueryOption
	if c.IsSet("threshold") {
		opts = append(opts, search.Threshold(float32(c.Float64("threshold"))))
	}
	if c.IsSet("weight") {
		opts = append(opts, search.VectorWeight(float32(c.Float64("weight"))))
	}

	ctx := c.Context
	w := c.App.Writer
	var results []*core.ChunkResult
	switch mode := c.String("mode"); mode {
	case modeFullText:
		results, err = searcher.FullText(ctx, query, limit)
	case modeVector:
		results, err = searcher.VectorText(ctx, query, limit, opts...)
	case modeHybrid:
		if !c.Bool("explain") {
			results, err = searcher.HybridText(ctx, query, limit, opts...)
			break
		}
		var embedding []float32
		if embedding, err = kb.Provider().Embedder().EmbedText(ctx, query); err != nil {
			return err
		}
		results, err = searcher.HybridWithMonitor(ctx, query, embedding, limit, &explainMonitor{w: w}, opts...)
	case modePolicies:
		policies, err := searcher.SearchPolicies(ctx, query, limit)
		if err != nil {
			return err
		}
		for i, r := range policies {
			fmt.Fprintf(w, "%d. [%.3f] %s (policy %d)\n", i+1, r.Score, r.Policy.Title, r.Policy.Id)
		}
		return nil
	default:
		return fmt.Errorf("invalid mode %q: must be one of %s, %s, %s, %s", mode, modeFullText, modeVector, modeHybrid, modePolicies)
	}
	if err != nil {
		return err
	}

	printResults(w, results)
	if c.Bool("policies") {
		policies, err := searcher.FanOut(ctx, results)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Policies:")
		for _, p := range policies {
			fmt.Fprintf(w, "  %d %s (%d images) %s\n", p.Id, p.Title, len(p.Images), p.SourceURL)
		}
	}
	return nil
}

func neighborsCommand(c *cli.Context) error {
	id, err := parseID(c.Args().First(), "chunk-id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	searcher, err := kb.NewSearcher()
	if err != nil {
		return err
	}
	defer searcher.Close()

	window := cfg.Retrieval.NeighborWindow
	if c.IsSet("window") {
		window = c.Int("window")
	}
	neighbors, err := searcher.Neighbors(c.Context, id, window)
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, chunk := range neighbors.Previous {
		fmt.Fprintf(w, "before #%d chunk %d: %s\n", chunk.Index, chunk.Id, preview(chunk.Content))
	}
	for _, chunk := range neighbors.Next {
		fmt.Fprintf(w, "after  #%d chunk %d: %s\n", chunk.Index, chunk.Id, preview(chunk.Content))
	}
	return nil
}

func listCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	policies, err := kb.ListPolicies(c.Context)
	if err != nil {
		return err
	}
	for _, p := range policies {
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%s\n", p.Id, p.Title, p.Metadata.ScrapeTimestamp, p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := parseID(c.Args().First(), "policy-id")
	if err != nil {
		return err
	}
	var adminID *core.ID
	if c.IsSet("admin") {
		admin := core.ID(c.Uint64("admin"))
		adminID = &admin
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	if err := kb.DeletePolicy(c.Context, id, adminID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted policy %d\n", id)
	return nil
}

func historyCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	var updates []*core.PolicyUpdate
	if c.Args().Present() {
		id, err := parseID(c.Args().First(), "policy-id")
		if err != nil {
			return err
		}
		updates, err = kb.History(c.Context, id)
		if err != nil {
			return err
		}
	} else if updates, err = kb.RecentHistory(c.Context, c.Int("limit")); err != nil {
		return err
	}

	for _, u := range updates {
		policy, admin := "-", "-"
		if u.PolicyId != nil {
			policy = strconv.FormatUint(uint64(*u.PolicyId), 10)
		}
		if u.AdminId != nil {
			admin = strconv.FormatUint(uint64(*u.AdminId), 10)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\tpolicy=%s\tadmin=%s\t%s\n",
			u.CreatedAt.Format("2006-01-02 15:04:05"), u.Action, policy, admin, u.Details)
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	rcfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		Workers:        c.Int("workers"),
		ReportInterval: c.Int("report-interval"),
		MaxAttempts:    c.Int("max-attempts"),
		RetryDelay:     c.Duration("retry-delay"),
		OnlyMissing:    c.Bool("only-missing"),
	}
	if err := rcfg.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, closeKB, err := openKnowledgeBase(c, cfg)
	if err != nil {
		return err
	}
	defer closeKB()

	reembedder, err := kb.NewReembedder(rcfg, c.App.ErrWriter)
	if err != nil {
		return err
	}
	stats, err := reembedder.Run(c.Context)
	if stats != nil {
		fmt.Fprintf(c.App.Writer, "Re-embedded %d of %d chunks across %d policies (%d failed) in %s\n",
			stats.Updated, stats.Chunks, stats.Policies, stats.Failed, stats.Elapsed.Round(time.Millisecond))
	}
	return err
}

func initConfigCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func parseID(s, name string) (core.ID, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: %s", errMissingArgument, name)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return core.ID(id), nil
}

func printResults(w io.Writer, results []*core.ChunkResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f v=%.3f t=%.3f] policy %d chunk %d #%d\n   %s\n",
			i+1, r.Score, r.VectorScore, r.TextScore, r.Chunk.PolicyId, r.Chunk.Id, r.Chunk.Index, preview(r.Chunk.Content))
	}
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= previewLength {
		return s
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// explainMonitor prints the candidates of each hybrid leg.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(query string) {
	fmt.Fprintf(m.w, "Query: %q\n", query)
}

func (m *explainMonitor) AfterVectorSearch(results []*core.ChunkResult) {
	fmt.Fprintf(m.w, "Vector candidates: %d\n", len(results))
	for _, r := range results {
		fmt.Fprintf(m.w, "  chunk %d similarity %.3f\n", r.Chunk.Id, r.VectorScore)
	}
}

func (m *explainMonitor) AfterTextSearch(terms []string, results []*core.ChunkResult) {
	fmt.Fprintf(m.w, "Text candidates for %v: %d\n", terms, len(results))
	for _, r := range results {
		fmt.Fprintf(m.w, "  chunk %d rank %.3f\n", r.Chunk.Id, r.TextScore)
	}
}

func (m *explainMonitor) Finish(results []*core.ChunkResult) {
	fmt.Fprintf(m.w, "Blended: %d\n", len(results))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/pagesim/pkg/client"
	"github.com/Sternrassler/pagesim/pkg/dataset"
	"github.com/Sternrassler/pagesim/pkg/logging"
	"github.com/Sternrassler/pagesim/pkg/metrics"
	"github.com/Sternrassler/pagesim/pkg/pager"
	"github.com/Sternrassler/pagesim/pkg/pagination"
	"github.com/Sternrassler/pagesim/pkg/random"
	"github.com/Sternrassler/pagesim/pkg/ratelimit"
)

const envPrefix = "PAGESIM"

// newRootCmd builds the pagesim command. Every flag can also be set through
// the environment (PAGESIM_MAX_PAGES for --max-pages) or a config file.
func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pagesim",
		Short: "Walk the simulated people list page by page and print it",
		Long: `pagesim runs the paging simulator behind a retrying client and walks the
list from the first page to the last, printing one "Name(id)" line per record.`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), v)
		},
	}

	defaults := pager.DefaultConfig()
	flags := cmd.Flags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error, disabled)")
	flags.Bool("pretty", false, "human-readable log output")
	flags.Uint64("seed", 0, "random seed (0 picks one)")
	flags.Int("dataset-min", defaults.DatasetSize.Min, "minimum dataset size")
	flags.Int("dataset-max", defaults.DatasetSize.Max, "maximum dataset size")
	flags.Int("page-min", defaults.PageSize.Min, "minimum page size")
	flags.Int("page-max", defaults.PageSize.Max, "maximum page size")
	flags.Float64("error-probability", defaults.ErrorProbability, "chance of a rate limit failure")
	flags.Float64("duplicate-probability", defaults.DuplicateBoundaryProbability, "chance of a duplicated boundary record")
	flags.Float64("empty-probability", defaults.EmptyFirstPageProbability, "chance of an empty first page")
	flags.Float64("latency-scale", 1, "multiplier applied to simulated latencies (0 delivers immediately)")
	flags.Duration("retry-backoff", 0, "initial retry backoff (0 keeps the per-class defaults)")
	flags.Int("max-pages", pagination.DefaultConfig().MaxPages, "stop after this many pages (0 = unlimited)")
	flags.Bool("no-empty-retry", false, "accept an empty first page instead of requesting it again")
	flags.Bool("json", false, "print records as JSON instead of Name(id) lines")
	flags.String("redis-addr", "", "keep rate limit state in Redis at this address")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func simulatorConfig(v *viper.Viper) (pager.Config, error) {
	cfg := pager.DefaultConfig()
	cfg.Seed = v.GetUint64("seed")
	cfg.DatasetSize = random.IntRange{Min: v.GetInt("dataset-min"), Max: v.GetInt("dataset-max")}
	cfg.PageSize = random.IntRange{Min: v.GetInt("page-min"), Max: v.GetInt("page-max")}
	cfg.ErrorProbability = v.GetFloat64("error-probability")
	cfg.DuplicateBoundaryProbability = v.GetFloat64("duplicate-probability")
	cfg.EmptyFirstPageProbability = v.GetFloat64("empty-probability")

	scale := v.GetFloat64("latency-scale")
	if scale < 0 {
		return pager.Config{}, fmt.Errorf("latency-scale must be >= 0 (got %v)", scale)
	}
	cfg.LowLatency = scaleRange(cfg.LowLatency, scale)
	cfg.HighLatency = scaleRange(cfg.HighLatency, scale)

	return cfg, cfg.Validate()
}

func scaleRange(r random.DurationRange, scale float64) random.DurationRange {
	return random.DurationRange{
		Min: time.Duration(float64(r.Min) * scale),
		Max: time.Duration(float64(r.Max) * scale),
	}
}

func retryPolicy(v *viper.Viper) client.RetryPolicy {
	policy := client.DefaultRetryPolicy()
	backoff := v.GetDuration("retry-backoff")
	if backoff <= 0 {
		return policy
	}
	for class, cfg := range policy {
		cfg.InitialBackoff = backoff
		if cfg.MaxBackoff < backoff {
			cfg.MaxBackoff = backoff
		}
		policy[class] = cfg
	}
	return policy
}

func run(ctx context.Context, out io.Writer, v *viper.Viper) error {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logger := logging.Setup(logging.Config{Level: level, Pretty: v.GetBool("pretty")})

	simCfg, err := simulatorConfig(v)
	if err != nil {
		return fmt.Errorf("invalid simulator config: %w", err)
	}
	sim, err := pager.New(simCfg, pager.WithLogger(logging.NewLogger("pager")))
	if err != nil {
		return err
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if addr := v.GetString("redis-addr"); addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
		}
		logger.Info().Str("addr", addr).Msg("Connected to Redis")
		store = ratelimit.NewRedisStore(redisClient)
	}

	if addr := v.GetString("metrics-addr"); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	clientLogger := logging.NewLogger("client")
	cfg := client.DefaultConfig(sim)
	cfg.Tracker = ratelimit.NewTracker(store, ratelimit.DefaultConfig(), logging.NewLogger("ratelimit"))
	cfg.Retry = retryPolicy(v)
	cfg.Logger = &clientLogger

	pageClient, err := client.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	walkCfg := pagination.DefaultConfig()
	walkCfg.MaxPages = v.GetInt("max-pages")
	walkCfg.RetryEmptyFirstPage = !v.GetBool("no-empty-retry")

	listing := pagination.NewListing(pageClient, logging.NewLogger("pagination"))
	records, walkErr := pagination.NewWalker(listing, walkCfg).Collect(ctx)

	asJSON := v.GetBool("json")
	if err := printRecords(out, records, asJSON); err != nil {
		return err
	}

	switch {
	case walkErr == nil:
		if len(records) == 0 && !asJSON {
			// same message the list view shows for an empty first page
			fmt.Fprintln(out, "No list please try again")
		}
		return nil
	case errors.Is(walkErr, pagination.ErrMaxPages):
		logger.Warn().Err(walkErr).Msg("Listing truncated")
		return nil
	default:
		var pageErr *client.PageError
		if errors.As(walkErr, &pageErr) {
			return errors.New(pageErr.Description)
		}
		return walkErr
	}
}

func printRecords(out io.Writer, records []dataset.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []dataset.Record{}
		}
		return enc.Encode(records)
	}
	for _, r := range records {
		if _, err := fmt.Fprintln(out, r); err != nil {
			return err
		}
	}
	return nil
}

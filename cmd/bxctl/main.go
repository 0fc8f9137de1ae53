// Command bxctl loads Boundlexx collections from the command line and
// exports them to SQLite.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meur/boundlexx/internal/client"
	"github.com/meur/boundlexx/internal/config"
	"github.com/meur/boundlexx/internal/loader"
	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/state"
	"github.com/meur/boundlexx/internal/store"
)

var (
	cfgPath string
	apiBase string
	locale  string
	dbPath  string
	verbose bool

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bxctl",
	Short: "Boundlexx cache tool",
	Long: `bxctl fetches Boundlexx collections through the compact msgpack API,
waits until every page is merged, and prints or exports the result.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if apiBase != "" {
			cfg.APIBase = apiBase
		}
		if locale != "" {
			cfg.Locale = locale
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		if logger == nil {
			zcfg := zap.NewProductionConfig()
			if verbose || cfg.Debug {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err = zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/boundlexx.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&locale, "lang", "", "locale for localized collections")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite export path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(schemaCmd, loadCmd, exportCmd, showCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newPipeline wires state, accessor and loader from the loaded config.
func newPipeline() (*state.State, *client.Accessor, *loader.Loader) {
	st := state.New(cfg.Throttle)
	acc := client.NewAccessor(client.Options{
		APIBase:        cfg.APIBase,
		ServerOverride: cfg.ServerOverride,
		Cooldown:       cfg.Cooldown,
		HTTPClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:         logger.Named("client"),
		Sink:           st,
	})
	ld := loader.New(acc, st, loader.Options{
		PageSize: cfg.PageSize,
		Cooldown: cfg.Cooldown,
		Logger:   logger.Named("loader"),
	})
	return st, acc, ld
}

// parseKinds turns arguments into kinds; no arguments means all of them.
func parseKinds(args []string) ([]models.Kind, error) {
	if len(args) == 0 {
		return models.AllKinds(), nil
	}
	kinds := make([]models.Kind, 0, len(args))
	for _, a := range args {
		k, err := models.ParseKind(strings.ToLower(a))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func countString(s store.Status) string {
	if s.Count == nil {
		return "-"
	}
	return strconv.Itoa(*s.Count)
}

// warnIncomplete reports a store whose page chain ended short of the declared
// count, which happens when the API sends records without an id.
func warnIncomplete(cmd *cobra.Command, s store.Status) {
	if s.Count == nil || s.Len >= *s.Count {
		return
	}
	logger.Warn("collection incomplete",
		zap.String("kind", string(s.Kind)),
		zap.Int("records", s.Len),
		zap.Int("count", *s.Count))
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s holds %d of %d records\n", s.Kind, s.Len, *s.Count)
}

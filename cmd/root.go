// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sourcerer/internal/config"
	"sourcerer/internal/fetch"
	"sourcerer/internal/httputil"
	"sourcerer/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagJSON        bool
	flagDebug       bool
	flagProgress    bool
	flagResolve     bool
	flagCORSProxy   string
	flagTimeout     string
	flagFingerprint bool
	flagReferrers   []string
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sourcerer",
	Short: "Resolve movies and episodes into playable streams",
	Long: `Sourcerer turns a movie or episode reference into candidate embeds and
resolves known embed pages into HLS streams behind a header-injecting proxy.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command. An interrupt cancels in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("NO_COLOR") == "" {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagProgress, "progress", false, "Print resolution progress to stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagResolve, "resolve", "r", false, "Run found embeds through a matching extractor")
	rootCmd.PersistentFlags().StringVar(&flagCORSProxy, "cors-proxy", "", "Intermediary used for proxied requests")
	rootCmd.PersistentFlags().StringVar(&flagTimeout, "timeout", "", "HTTP timeout, e.g. 15s")
	rootCmd.PersistentFlags().BoolVar(&flagFingerprint, "fingerprint", false, "Use a browser TLS fingerprint")
	rootCmd.PersistentFlags().StringSliceVar(&flagReferrers, "referrer", nil, "Hosts whose links redirect to vidmoly (repeatable)")

	rootCmd.AddCommand(movieCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagCORSProxy != "" {
		cfg.CORSProxy = flagCORSProxy
	}
	if flagTimeout != "" {
		cfg.Timeout = flagTimeout
	}
	if flagFingerprint {
		cfg.TLSFingerprint = true
	}
	if cmd.Flags().Changed("referrer") {
		cfg.VidmolyReferrers = flagReferrers
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg)
	return nil
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// newClient builds the HTTP client selected by the config.
func newClient() *http.Client {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		timeout = httputil.DefaultTimeout
	}
	if cfg.TLSFingerprint {
		debugf("using browser TLS fingerprint")
		return httputil.NewFingerprintClient(timeout)
	}
	return httputil.NewClient(timeout)
}

// newFetcher builds the fetch context resolvers run against.
func newFetcher(label string) *fetch.HTTP {
	opts := []fetch.Option{fetch.WithLogger(logrus.StandardLogger())}
	if cfg.CORSProxy != "" {
		opts = append(opts, fetch.WithProxy(cfg.CORSProxy))
	}
	if flagProgress {
		opts = append(opts, fetch.WithProgress(func(percent int) {
			fmt.Fprintf(os.Stderr, "%s: %d%%\n", label, percent)
		}))
	}
	return fetch.NewHTTP(newClient(), opts...)
}

package cmd

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sourcerer/internal/fetch"
	"sourcerer/internal/hlsproxy"
)

var flagListen string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Serve the HLS header-injecting proxy",
	Long: `Serve /m3u8 and /segment. Both take a url and an optional JSON headers
parameter; playlists are rewritten so nested playlists and segments go back
through the proxy with the same headers.`,
	Args: cobra.NoArgs,
	RunE: proxyRun,
}

func init() {
	proxyCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default from config proxy_listen)")
}

func proxyRun(cmd *cobra.Command, args []string) error {
	addr := cfg.ProxyListen
	if flagListen != "" {
		addr = flagListen
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	upstream := fetch.NewHTTP(newClient(), fetch.WithLogger(logrus.StandardLogger()))
	srv := hlsproxy.New(upstream, logrus.StandardLogger())
	if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
		return fmt.Errorf("serving proxy: %w", err)
	}
	return nil
}

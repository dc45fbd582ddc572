// Command test runs a local fake feed plus the token REST endpoints so the main
// binary can be exercised without credentials:
//
//	go run ./cmd/test --port 8765
//	TASTY_CLIENT_ID=x TASTY_CLIENT_SECRET=x TASTY_REFRESH_TOKEN=x \
//	  market-streamer -c config/local.yaml quotes SPY --duration 5s
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-streamer/src/dxlink/dxlinktest"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/spf13/cobra"
)

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func newCommand() *cobra.Command {
	var (
		host          string
		port          int
		token         string
		echoFields    bool
		quoteInterval time.Duration
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:          "fake-feed",
		Short:        "Serve a fake streaming feed and its token endpoints on one port",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger(&models.MConfig{LogLevel: logLevel}, "FakeFeed")

			addr := fmt.Sprintf("%s:%d", host, port)
			feedURL := fmt.Sprintf("ws://%s/dxlink", addr)

			mux := http.NewServeMux()
			mux.Handle("/dxlink", dxlinktest.NewFeed(dxlinktest.Config{
				Token:         token,
				EchoFields:    echoFields,
				QuoteInterval: quoteInterval,
				Logger:        log,
			}))
			mux.Handle("/", dxlinktest.RESTHandler(feedURL, token))

			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("Fake feed on %s, set api.base_url to http://%s", feedURL, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen host")
	cmd.Flags().IntVar(&port, "port", 8765, "listen port")
	cmd.Flags().StringVar(&token, "token", "local-quote-token", "streaming token issued and expected by the feed")
	cmd.Flags().BoolVar(&echoFields, "echo-fields", true, "echo the accepted field list in FEED_CONFIG")
	cmd.Flags().DurationVar(&quoteInterval, "quote-interval", 250*time.Millisecond, "delay between live quotes")
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "DEBUG|INFO|WARNING|ERROR")
	return cmd
}

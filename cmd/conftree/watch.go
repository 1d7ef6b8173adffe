package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/conftree/adapters/metrics"
	"github.com/artpar/conftree/adapters/watch"
	"github.com/artpar/conftree/core/tree"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch schema and values files and reload on change",
	Long: `Watch the schema and a values document and reload on every change.

A change to either file only replaces the current document after it
validates against the schema; a broken edit keeps the last good
version and logs the error. SIGHUP forces a reload.

Examples:
  conftree watch -s schema.json -f values.json
  conftree watch -s schema.yaml -f values.yaml --listen :9090`,
	RunE: runWatch,
}

var (
	watchValuesFile string
	watchListen     string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchValuesFile, "file", "f", "", "values document to watch (required)")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.MarkFlagRequired("file")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if schemaPath == "" {
		return fmt.Errorf("no schema file: pass --schema")
	}
	collab, err := newCollaborators()
	if err != nil {
		return err
	}
	logger := newLogger(zerolog.InfoLevel)

	var h *watch.Holder
	if watchListen != "" {
		h, err = watch.NewHolderWithMetrics(schemaPath, watchValuesFile, collab, logger, metrics.New())
	} else {
		h, err = watch.NewHolder(schemaPath, watchValuesFile, collab, logger)
	}
	if err != nil {
		return err
	}
	defer h.Stop()

	h.OnChange(func(tr *tree.Tree) {
		if res := tr.Check(); !res.Complete() {
			fmt.Printf("%s reloaded with %d open issues\n", crossMark, len(res.Issues))
			return
		}
		fmt.Printf("%s reloaded, document complete\n", checkMark)
	})

	if err := h.WatchFiles(); err != nil {
		return err
	}
	h.WatchSignals()

	if watchListen != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(watchListen, nil); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		fmt.Printf("Metrics on http://localhost%s/metrics\n", watchListen)
	}

	if res := h.Get().Check(); res.Complete() {
		fmt.Printf("%s watching %s, document complete\n", checkMark, watchValuesFile)
	} else {
		fmt.Printf("%s watching %s, %d open issues\n", crossMark, watchValuesFile, len(res.Issues))
	}
	fmt.Println("Press Ctrl+C to stop, send SIGHUP to force a reload.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nStopping.")
	return nil
}

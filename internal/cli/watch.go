package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/ingest"
)

var watchRoots []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch definition roots and re-ingest on change",
	Long:  `Runs one full ingestion pass, then watches the definition roots and re-ingests files as they change. Stops on SIGINT or SIGTERM without interrupting in-flight writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := buildStack(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if len(watchRoots) > 0 {
			s.cfg.Ingest.Roots = watchRoots
			s.pipeline = ingest.NewPipeline(s.svc, s.cfg.Ingest, s.logger)
		}
		if len(s.cfg.Ingest.Roots) == 0 {
			return fmt.Errorf("no ingestion roots configured; pass --root or set CATALOG_INGEST_ROOTS")
		}

		if _, err := s.pipeline.Run(ctx); err != nil {
			return err
		}

		watcher, err := ingest.NewWatcher(s.pipeline, s.svc, s.cfg.Ingest, s.logger)
		if err != nil {
			return err
		}

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-signals
			watcher.Stop()
		}()

		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringArrayVar(&watchRoots, "root", nil, "Definition root directory (repeatable)")
}

// Command payattn-worker runs the durable settlement retry queue as a
// standalone process, separate from the coordinator daemon, so the two
// can be scaled and restarted independently.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/config"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/metric"
	"github.com/payattn/payattn/pkg/repository"
	"github.com/payattn/payattn/pkg/retry"
	"github.com/payattn/payattn/pkg/settlement"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:     "payattn-worker",
	Short:   "PayAttn durable settlement retry worker",
	Version: "0.1.0-dev",
	Run:     runWorker,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress startup banner")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) {
	logger := log.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.RepositoryConfig(), logger)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	platformPubkey, err := core.PubkeyFromBase58(cfg.PlatformPubkey)
	if err != nil {
		logger.Fatal("PLATFORM_PUBKEY is not a valid base58 public key", "error", err)
	}
	programID, err := core.PubkeyFromBase58(cfg.ProgramID)
	if err != nil {
		logger.Fatal("PROGRAM_ID is not a valid base58 public key", "error", err)
	}

	metrics := metric.New()
	program := escrow.NewProgram(programID, repository.NewEscrowState(db))
	queueRepo := repository.NewQueueRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	engine := settlement.NewEngine(program, queueRepo, offerRepo, platformPubkey, metrics, logger)
	worker := retry.NewWorker(queueRepo, engine, offerRepo, metrics, logger).WithBackoff(cfg.RetryInterval)

	if !quiet {
		fmt.Printf("payattn-worker: polling every %s, database mode %q\n", cfg.RetryInterval, cfg.DatabaseMode)
	}
	logger.Info("payattn-worker started", "retry_interval", cfg.RetryInterval.String())

	worker.Run(ctx, cfg.RetryInterval)
	logger.Info("payattn-worker stopped")
}

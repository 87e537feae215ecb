// Command drived is the node operator's entry point: load configuration,
// open the authenticated store, and expose the lifecycle operations an
// external consensus driver (or an operator doing a one-off maintenance
// task) needs around internal/abci.App. It does not embed a BFT engine
// or an ABCI gRPC server; that boundary belongs to an external
// collaborator, and this binary is the process that collaborator talks
// to.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dashpay/drive-platform/internal/abci"
	"github.com/dashpay/drive-platform/internal/config"
	"github.com/dashpay/drive-platform/internal/corerpc"
	"github.com/dashpay/drive-platform/internal/epoch"
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/execution"
	"github.com/dashpay/drive-platform/internal/fees"
	"github.com/dashpay/drive-platform/internal/identity"
	"github.com/dashpay/drive-platform/internal/platform"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
)

// contractCacheCapacity bounds the process-wide data contract cache;
// unlike the fee/epoch parameters this isn't something an operator needs
// to tune per deployment, so it isn't exposed as a config key.
const contractCacheCapacity = 4096

func main() {
	rootCmd := &cobra.Command{Use: "drived"}
	rootCmd.PersistentFlags().String("config", "", "directory containing config.yaml")
	rootCmd.AddCommand(initChainCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(retryWithdrawalsCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lv, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(lv)
	}
	return cfg, nil
}

func openApp(cfg *config.Config) (*abci.App, *store.Store, error) {
	dbPath := filepath.Join(cfg.Storage.DataDir, "drive.db")
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, nil, err
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	reg, err := registry.NewRegistry(contractCacheCapacity)
	if err != nil {
		return nil, nil, errs.Wrap(err, "open contract registry")
	}

	feeParams := fees.Params{StorageCostPerByte: cfg.Fees.StorageCostPerByte, EpochsPerEra: cfg.Fees.EpochsPerEra}
	verifier := func(identity.Key, []byte, []byte) (bool, error) { return false, fmt.Errorf("no signature verifier wired") }
	exec := execution.New(s, reg, feeParams, cfg.Fees.PenaltyAmount, verifier, nil)
	exec.AssetLockVerifier = func([]byte, [36]byte) (bool, error) {
		return false, fmt.Errorf("no instant lock verifier wired")
	}
	execution.RegisterDefaults(exec, execution.VotingParams{
		PollDurationBlocks: cfg.Voting.PollDurationBlocks,
		MaxLockCount:       cfg.Voting.MaxLockCount,
	})
	plat := platform.New(1)
	if restored, err := platform.LoadState(s, plat); err != nil {
		return nil, nil, errs.Wrap(err, "restore saved platform state")
	} else if restored {
		logrus.Debug("restored platform state from store")
	}

	// Wire-format decoding of transition bodies is the consensus driver's
	// integration concern: it owns the concrete codec and calls
	// app.Deserialize before handing this App its first block. Operation
	// dispatch itself is wired above.
	app := abci.New(exec, plat, nil, cfg.Epoch.BlocksPerEpoch, nil)
	app.CoreSubsidyPerBlock = cfg.Epoch.CoreSubsidyPerBlock
	return app, s, nil
}

func initChainCmd() *cobra.Command {
	var genesisTimeMs int64
	var coreHeight int
	cmd := &cobra.Command{
		Use:   "init-chain",
		Short: "seed platform state and open the genesis epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, s, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := app.InitChain(uint64(genesisTimeMs), uint32(coreHeight), nil); err != nil {
				return err
			}
			fmt.Printf("genesis epoch opened at core height %d\n", coreHeight)
			return nil
		},
	}
	cmd.Flags().Int64Var(&genesisTimeMs, "genesis-time-ms", 0, "genesis block time, unix milliseconds")
	cmd.Flags().IntVar(&coreHeight, "core-height", 0, "Dash Core chain height at genesis")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "print the current root hash and oldest-unpaid epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, s, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			root, err := s.RootHash()
			if err != nil {
				return err
			}
			tx, err := s.Begin()
			if err != nil {
				return err
			}
			oldest, err := epoch.OldestUnpaid(tx)
			tx.Rollback()
			if err != nil {
				return err
			}
			fmt.Printf("root_hash=%x oldest_unpaid_epoch=%d\n", root, oldest)
			return nil
		},
	}
	return cmd
}

func retryWithdrawalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-withdrawals",
		Short: "report the active and expired queued asset-unlock broadcasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Withdrawals.RejectionsDir
			q, err := corerpc.NewRetryQueue(dir, cfg.Withdrawals.RetryTTLBlocks)
			if err != nil {
				return err
			}
			active, expired, err := q.Pending()
			if err != nil {
				return err
			}
			fmt.Printf("pending asset-unlock retries: active=%d expired=%d\n", active, expired)
			fmt.Println("no Core RPC client configured; nothing to broadcast")
			return nil
		},
	}
	return cmd
}

// Command paytrace drives a Bitcoin Core regtest node through one full
// wallet-to-wallet payment lifecycle and writes the derived accounting
// fields to a ten-line report file.
package main

import (
	"log"
	"os"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/neverDefined/go-paytrace/internal/config"
	"github.com/neverDefined/go-paytrace/internal/logger"
	"github.com/neverDefined/go-paytrace/internal/node"
	"github.com/neverDefined/go-paytrace/internal/payment"
	"github.com/neverDefined/go-paytrace/internal/report"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logg := logger.Init(cfg.Env)

	if cfg.Node.Manage {
		mgr, err := node.NewManager(node.ManagerConfig{
			Script:    cfg.Node.Script,
			DataDir:   cfg.Node.DataDir,
			ExtraArgs: cfg.Node.ExtraArgs,
		})
		if err != nil {
			return err
		}
		if err := mgr.Start(); err != nil {
			return err
		}
		defer mgr.Stop()
		logg.Info("managed regtest node started")
	}

	client, err := node.New(node.Config{
		Host: cfg.RPC.Host,
		User: cfg.RPC.User,
		Pass: cfg.RPC.Pass,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.ChainInfo()
	if err != nil {
		return err
	}
	logg.Info("connected to node", "chain", info.Chain, "blocks", info.Blocks)

	amount, err := btcutil.NewAmount(cfg.Payment.AmountBTC)
	if err != nil {
		return err
	}

	runner := payment.NewRunner(client, payment.Config{
		MinerWallet:     cfg.Wallets.Miner,
		TraderWallet:    cfg.Wallets.Trader,
		Amount:          amount,
		MaturityBlocks:  cfg.Payment.MaturityBlocks,
		PropagationWait: cfg.Payment.PropagationWait,
	}, logg)

	rep, err := runner.Run()
	if err != nil {
		return err
	}

	if err := rep.WriteFile(cfg.Report.Path); err != nil {
		return err
	}

	logg.Info("report written",
		"path", cfg.Report.Path,
		"txid", rep.TxID,
		"miner_input_address", rep.MinerInputAddress,
		"miner_input_btc", report.FormatAmount(rep.MinerInputAmount),
		"trader_output_address", rep.TraderOutputAddress,
		"trader_output_btc", report.FormatAmount(rep.TraderOutputAmount),
		"miner_change_address", rep.MinerChangeAddress,
		"miner_change_btc", report.FormatAmount(rep.MinerChangeAmount),
		"fee_btc", report.FormatAmount(rep.Fee),
		"block_height", rep.BlockHeight,
		"block_hash", rep.BlockHash,
	)

	return nil
}

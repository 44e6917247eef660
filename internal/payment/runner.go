// Package payment drives the wallet-to-wallet payment lifecycle against a
// regtest node: ensure the Miner and Trader wallets, mine the Miner's
// balance into spendability, send the payment, watch it through the mempool,
// confirm it in a block, and reconcile the confirmed transaction into the
// ten-field report.
package payment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/neverDefined/go-paytrace/internal/node"
	"github.com/neverDefined/go-paytrace/internal/report"
)

// Address labels, visible in the wallets' address books.
const (
	minerAddressLabel  = "Mining Reward"
	traderAddressLabel = "Received"
)

// extraMiningRounds bounds the mine-until-spendable loop after the maturity
// batch. One round suffices on a fresh chain; the bound only guards against
// a wallet that somehow never sees a matured subsidy.
const extraMiningRounds = 10

// Config holds the lifecycle tunables.
type Config struct {
	MinerWallet  string
	TraderWallet string

	// Amount is what the Miner pays the Trader.
	Amount btcutil.Amount

	// MaturityBlocks is the initial mining batch. Regtest coinbases mature
	// after 100 confirmations, so 101 makes the first subsidy spendable.
	MaturityBlocks int64

	// PropagationWait is the single fixed pause after mining the confirming
	// block. No polling.
	PropagationWait time.Duration
}

// Runner executes the lifecycle once. Strictly sequential; the first failed
// call aborts the run.
type Runner struct {
	node *node.Client
	cfg  Config
	log  *slog.Logger
}

func NewRunner(n *node.Client, cfg Config, log *slog.Logger) *Runner {
	return &Runner{node: n, cfg: cfg, log: log}
}

// Run performs the nine steps and returns the validated report.
func (r *Runner) Run() (*report.Report, error) {
	// Step 1: make both wallets available.
	for _, w := range []string{r.cfg.MinerWallet, r.cfg.TraderWallet} {
		if err := r.node.EnsureWallet(w); err != nil {
			return nil, fmt.Errorf("ensure wallet: %w", err)
		}
		r.log.Info("wallet ready", "wallet", w)
	}

	// Step 2: labeled mining address from the Miner wallet.
	mineAddr, err := r.node.NewAddress(r.cfg.MinerWallet, minerAddressLabel)
	if err != nil {
		return nil, fmt.Errorf("mining address: %w", err)
	}
	r.log.Info("generated mining address", "address", mineAddr.EncodeAddress(), "label", minerAddressLabel)

	// Step 3: mine until the Miner balance is spendable. Coinbase outputs
	// need 100 confirmations before the wallet counts them.
	balance, err := r.mineToSpendable(mineAddr)
	if err != nil {
		return nil, fmt.Errorf("mine to spendable: %w", err)
	}
	r.log.Info("miner balance spendable", "balance_btc", balance.ToBTC())

	// Step 4: labeled receiving address from the Trader wallet.
	traderAddr, err := r.node.NewAddress(r.cfg.TraderWallet, traderAddressLabel)
	if err != nil {
		return nil, fmt.Errorf("trader address: %w", err)
	}
	r.log.Info("generated trader address", "address", traderAddr.EncodeAddress(), "label", traderAddressLabel)

	// Step 5: pay the Trader.
	txid, err := r.node.Send(r.cfg.MinerWallet, traderAddr, r.cfg.Amount)
	if err != nil {
		return nil, fmt.Errorf("send payment: %w", err)
	}
	r.log.Info("payment sent", "txid", txid.String(), "amount_btc", r.cfg.Amount.ToBTC())

	// Step 6: the transaction must be sitting in the mempool, unconfirmed.
	entry, err := r.node.MempoolEntry(txid.String())
	if err != nil {
		return nil, fmt.Errorf("mempool entry: %w", err)
	}
	r.log.Info("payment in mempool",
		"txid", txid.String(),
		"vsize", entry.VSize,
		"fee_btc", entry.Fees.Base)

	// Step 7: confirm with one block, then wait once for propagation.
	hashes, err := r.node.MineToAddress(1, mineAddr)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	confirmingHash := hashes[0]
	time.Sleep(r.cfg.PropagationWait)
	r.log.Info("payment confirmed", "block", confirmingHash.String())

	// Step 8: fetch the confirmed transaction and block, reconcile.
	tx, err := r.node.RawTransaction(txid.String())
	if err != nil {
		return nil, fmt.Errorf("confirmed transaction: %w", err)
	}
	block, err := r.node.Block(confirmingHash)
	if err != nil {
		return nil, fmt.Errorf("confirming block: %w", err)
	}

	s, err := reconcile(tx, r.node, traderAddr.EncodeAddress())
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	// Cross-check against the node's own fee figure. Informational only;
	// the report carries the reconciled fee.
	if mempoolFee, err := btcutil.NewAmount(entry.Fees.Base); err == nil && mempoolFee != s.fee {
		r.log.Warn("reconciled fee differs from mempool fee",
			"reconciled_btc", s.fee.ToBTC(), "mempool_btc", mempoolFee.ToBTC())
	}
	if msgTx, err := r.node.DecodeTransaction(tx.Hex); err == nil {
		r.log.Debug("confirmed transaction decoded",
			"inputs", len(msgTx.TxIn), "outputs", len(msgTx.TxOut))
	}

	rep := &report.Report{
		TxID:                tx.Txid,
		MinerInputAddress:   s.inputAddress,
		MinerInputAmount:    s.inputAmount,
		TraderOutputAddress: s.outputAddress,
		TraderOutputAmount:  s.outputAmount,
		MinerChangeAddress:  s.changeAddress,
		MinerChangeAmount:   s.changeAmount,
		Fee:                 s.fee,
		BlockHeight:         block.Height,
		BlockHash:           block.Hash,
	}
	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("report validation: %w", err)
	}

	return rep, nil
}

// mineToSpendable mines the maturity batch to addr, then single blocks until
// the Miner wallet reports a positive balance, bounded by extraMiningRounds.
func (r *Runner) mineToSpendable(addr btcutil.Address) (btcutil.Amount, error) {
	if _, err := r.node.MineToAddress(r.cfg.MaturityBlocks, addr); err != nil {
		return 0, err
	}

	for i := 0; i <= extraMiningRounds; i++ {
		balance, err := r.node.Balance(r.cfg.MinerWallet)
		if err != nil {
			return 0, err
		}
		if balance > 0 {
			return balance, nil
		}
		if _, err := r.node.MineToAddress(1, addr); err != nil {
			return 0, err
		}
	}

	return 0, fmt.Errorf("miner balance still zero after %d extra blocks", extraMiningRounds)
}

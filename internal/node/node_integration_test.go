package node

import (
	"os/exec"
	"testing"
)

// Integration tests drive a real managed regtest node. They skip when
// Bitcoin Core is not installed.

func startNode(t *testing.T) (*Manager, *Client) {
	t.Helper()

	if _, err := exec.LookPath("bitcoind"); err != nil {
		t.Skip("bitcoind not installed, skipping integration test")
	}

	mgr, err := NewManager(ManagerConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if err := mgr.Start(); err != nil {
		t.Fatalf("failed to start bitcoind: %v", err)
	}
	t.Cleanup(func() { mgr.Stop() })

	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create rpc client: %v", err)
	}
	t.Cleanup(client.Close)

	return mgr, client
}

func TestIntegration_Connection(t *testing.T) {
	mgr, client := startNode(t)

	running, err := mgr.IsRunning()
	if err != nil {
		t.Fatalf("failed to check node status: %v", err)
	}
	if !running {
		t.Fatal("node should be running after start")
	}

	info, err := client.ChainInfo()
	if err != nil {
		t.Fatalf("failed to get blockchain info: %v", err)
	}
	if info.Chain != "regtest" {
		t.Fatalf("expected regtest chain, got %s", info.Chain)
	}

	t.Log("health check passed")
}

func TestIntegration_EnsureWalletIdempotent(t *testing.T) {
	_, client := startNode(t)

	if err := client.EnsureWallet("miner"); err != nil {
		t.Fatalf("failed to ensure wallet: %v", err)
	}
	defer client.UnloadWallet("miner")

	// Ensuring an already-loaded wallet must succeed, not fail.
	if err := client.EnsureWallet("miner"); err != nil {
		t.Fatalf("failed to ensure existing wallet: %v", err)
	}

	t.Log("ensured wallet twice: miner")
}

func TestIntegration_MineAndBalance(t *testing.T) {
	_, client := startNode(t)

	if err := client.EnsureWallet("miner"); err != nil {
		t.Fatalf("failed to ensure wallet: %v", err)
	}
	defer client.UnloadWallet("miner")

	addr, err := client.NewAddress("miner", "Mining Reward")
	if err != nil {
		t.Fatalf("failed to generate address: %v", err)
	}

	startHeight, err := client.BlockCount()
	if err != nil {
		t.Fatalf("failed to get block count: %v", err)
	}

	if _, err := client.MineToAddress(101, addr); err != nil {
		t.Fatalf("failed to mine: %v", err)
	}

	endHeight, err := client.BlockCount()
	if err != nil {
		t.Fatalf("failed to get block count: %v", err)
	}
	if endHeight != startHeight+101 {
		t.Fatalf("block count did not increase by 101: %d != %d", endHeight, startHeight+101)
	}

	balance, err := client.Balance("miner")
	if err != nil {
		t.Fatalf("failed to get balance: %v", err)
	}
	if balance <= 0 {
		t.Fatalf("balance should be spendable after maturity, got %v", balance)
	}

	t.Logf("balance after maturity: %v", balance)
}

func TestIntegration_SendAndMempool(t *testing.T) {
	_, client := startNode(t)

	if err := client.EnsureWallet("miner"); err != nil {
		t.Fatalf("failed to ensure wallet: %v", err)
	}
	defer client.UnloadWallet("miner")

	addr, err := client.NewAddress("miner", "Mining Reward")
	if err != nil {
		t.Fatalf("failed to generate address: %v", err)
	}
	if _, err := client.MineToAddress(101, addr); err != nil {
		t.Fatalf("failed to mine: %v", err)
	}

	dest, err := client.NewAddress("miner", "self")
	if err != nil {
		t.Fatalf("failed to generate destination address: %v", err)
	}

	txid, err := client.Send("miner", dest, 100_000_000) // 1 BTC
	if err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	entry, err := client.MempoolEntry(txid.String())
	if err != nil {
		t.Fatalf("failed to get mempool entry: %v", err)
	}
	if entry.Fees.Base <= 0 {
		t.Fatalf("mempool entry should carry a positive fee, got %v", entry.Fees.Base)
	}

	hashes, err := client.MineToAddress(1, addr)
	if err != nil {
		t.Fatalf("failed to confirm: %v", err)
	}

	tx, err := client.RawTransaction(txid.String())
	if err != nil {
		t.Fatalf("failed to get confirmed transaction: %v", err)
	}
	if tx.BlockHash != hashes[0].String() {
		t.Fatalf("transaction confirmed in unexpected block: %s != %s", tx.BlockHash, hashes[0])
	}

	block, err := client.Block(hashes[0])
	if err != nil {
		t.Fatalf("failed to get confirming block: %v", err)
	}
	if block.Height <= 101 {
		t.Fatalf("unexpected confirming height: %d", block.Height)
	}

	t.Logf("confirmed %s in block %d", txid, block.Height)
}

package node

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != "127.0.0.1:18443" {
		t.Errorf("expected default host 127.0.0.1:18443, got %s", cfg.Host)
	}
	if cfg.User != "user" {
		t.Errorf("expected default user 'user', got %s", cfg.User)
	}
	if cfg.Pass != "pass" {
		t.Errorf("expected default pass 'pass', got %s", cfg.Pass)
	}
}

func TestConnConfig(t *testing.T) {
	cfg := DefaultConfig()

	base := connConfig(cfg, "")
	if base.Host != "127.0.0.1:18443" {
		t.Errorf("unexpected base host: %s", base.Host)
	}
	if !base.HTTPPostMode || !base.DisableTLS {
		t.Error("expected HTTP POST mode with TLS disabled")
	}
	if base.Params != "regtest" {
		t.Errorf("expected regtest params, got %q", base.Params)
	}

	wallet := connConfig(cfg, "Miner")
	if wallet.Host != "127.0.0.1:18443/wallet/Miner" {
		t.Errorf("unexpected wallet host: %s", wallet.Host)
	}
}

func TestHasRPCErrorCode(t *testing.T) {
	notFound := btcjson.NewRPCError(errWalletNotFound, "Requested wallet does not exist or is not loaded")

	if !hasRPCErrorCode(notFound, errWalletNotFound) {
		t.Error("expected match on bare RPC error")
	}
	if !hasRPCErrorCode(fmt.Errorf("loadwallet: %w", notFound), errWalletNotFound) {
		t.Error("expected match on wrapped RPC error")
	}
	if hasRPCErrorCode(notFound, errWalletAlreadyLoaded) {
		t.Error("expected mismatch on different code")
	}
	if hasRPCErrorCode(errors.New("connection refused"), errWalletNotFound) {
		t.Error("expected mismatch on non-RPC error")
	}
}

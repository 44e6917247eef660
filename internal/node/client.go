// Package node manages a local Bitcoin Core regtest process and exposes the
// small RPC surface the payment lifecycle needs: wallet management, labeled
// addresses, mining, balances, sends, and the mempool/transaction/block
// queries used to reconcile a confirmed payment.
package node

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Bitcoin Core wallet RPC error codes the ensure-wallet ladder depends on.
const (
	errWalletError         = btcjson.RPCErrorCode(-4)  // createwallet: wallet already exists on disk
	errWalletNotFound      = btcjson.RPCErrorCode(-18) // loadwallet: no such wallet
	errWalletAlreadyLoaded = btcjson.RPCErrorCode(-35) // loadwallet: wallet is already loaded
)

// Config holds the RPC connection parameters for the node.
type Config struct {
	Host string
	User string
	Pass string
}

// DefaultConfig returns the connection parameters of a standard local
// regtest node.
//
// Configuration details:
//   - Host: 127.0.0.1:18443 (standard regtest RPC port)
//   - Authentication: user/pass (default regtest credentials)
func DefaultConfig() Config {
	return Config{
		Host: "127.0.0.1:18443",
		User: "user",
		Pass: "pass",
	}
}

// Client is the RPC surface over a regtest node. It keeps one node-level
// connection plus one lazily created connection per wallet, since Bitcoin
// Core scopes wallet RPCs to /wallet/<name> endpoints.
type Client struct {
	cfg  Config
	base *rpcclient.Client

	mu      sync.Mutex
	wallets map[string]*rpcclient.Client
}

// New connects to the node's top-level RPC endpoint. HTTP POST mode with TLS
// disabled, matching a local regtest deployment.
func New(cfg Config) (*Client, error) {
	base, err := rpcclient.New(connConfig(cfg, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}

	return &Client{
		cfg:     cfg,
		base:    base,
		wallets: make(map[string]*rpcclient.Client),
	}, nil
}

func connConfig(cfg Config, wallet string) *rpcclient.ConnConfig {
	host := cfg.Host
	if wallet != "" {
		host += "/wallet/" + wallet
	}
	return &rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		Params:       chaincfg.RegressionNetParams.Name,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
}

// Close shuts down the node-level connection and every wallet connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.wallets {
		w.Shutdown()
	}
	c.wallets = make(map[string]*rpcclient.Client)
	c.base.Shutdown()
}

// Wallet returns the RPC connection scoped to the named wallet, creating and
// caching it on first use. The wallet must already be loaded on the node;
// use EnsureWallet first.
func (c *Client) Wallet(name string) (*rpcclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.wallets[name]; ok {
		return w, nil
	}

	w, err := rpcclient.New(connConfig(c.cfg, name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client for %q: %w", name, err)
	}
	c.wallets[name] = w
	return w, nil
}

// EnsureWallet makes the named wallet available: load it if it exists on
// disk, create it otherwise. Re-running against a wallet that already exists
// (or is already loaded) succeeds.
//
// The ladder:
//  1. loadwallet — success or "already loaded" means done
//  2. on "not found", createwallet
//  3. on create "already exists" (created between attempts), loadwallet again
func (c *Client) EnsureWallet(name string) error {
	_, err := c.base.LoadWallet(name)
	if err == nil || hasRPCErrorCode(err, errWalletAlreadyLoaded) {
		return nil
	}
	if !hasRPCErrorCode(err, errWalletNotFound) {
		return fmt.Errorf("failed to load wallet %q: %w", name, err)
	}

	if _, err := c.base.CreateWallet(name); err != nil {
		if !hasRPCErrorCode(err, errWalletError) {
			return fmt.Errorf("failed to create wallet %q: %w", name, err)
		}
		if _, err := c.base.LoadWallet(name); err != nil && !hasRPCErrorCode(err, errWalletAlreadyLoaded) {
			return fmt.Errorf("failed to load wallet %q after create: %w", name, err)
		}
	}

	return nil
}

// UnloadWallet unloads the named wallet from the node and drops its cached
// connection.
func (c *Client) UnloadWallet(name string) error {
	c.mu.Lock()
	if w, ok := c.wallets[name]; ok {
		w.Shutdown()
		delete(c.wallets, name)
	}
	c.mu.Unlock()

	if err := c.base.UnloadWallet(&name); err != nil {
		return fmt.Errorf("failed to unload wallet %q: %w", name, err)
	}
	return nil
}

// NewAddress generates a fresh receiving address in the named wallet under
// the given label.
func (c *Client) NewAddress(wallet, label string) (btcutil.Address, error) {
	w, err := c.Wallet(wallet)
	if err != nil {
		return nil, err
	}

	addr, err := w.GetNewAddress(label)
	if err != nil {
		return nil, fmt.Errorf("failed to generate address in wallet %q: %w", wallet, err)
	}
	return addr, nil
}

// MineToAddress mines the given number of blocks paying the subsidy to addr
// and returns the hashes of the mined blocks, in order.
func (c *Client) MineToAddress(blocks int64, addr btcutil.Address) ([]*chainhash.Hash, error) {
	hashes, err := c.base.GenerateToAddress(blocks, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to mine %d block(s) to %s: %w", blocks, addr.EncodeAddress(), err)
	}
	return hashes, nil
}

// Balance returns the spendable balance of the named wallet across all
// accounts.
func (c *Client) Balance(wallet string) (btcutil.Amount, error) {
	w, err := c.Wallet(wallet)
	if err != nil {
		return 0, err
	}

	balance, err := w.GetBalance("*")
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of wallet %q: %w", wallet, err)
	}
	return balance, nil
}

// Send spends amount from the named wallet to addr via sendtoaddress and
// returns the transaction id. Coin selection, change, and fees are the
// node's business.
func (c *Client) Send(wallet string, addr btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	w, err := c.Wallet(wallet)
	if err != nil {
		return nil, err
	}

	txid, err := w.SendToAddress(addr, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to send %v from wallet %q: %w", amount, wallet, err)
	}
	return txid, nil
}

// MempoolEntry fetches the mempool entry of an unconfirmed transaction.
func (c *Client) MempoolEntry(txid string) (*btcjson.GetMempoolEntryResult, error) {
	entry, err := c.base.GetMempoolEntry(txid)
	if err != nil {
		return nil, fmt.Errorf("failed to get mempool entry for %s: %w", txid, err)
	}
	return entry, nil
}

// RawTransaction fetches the verbose decoding of a transaction. The managed
// node runs with txindex enabled so confirmed transactions outside the
// wallet resolve too.
func (c *Client) RawTransaction(txid string) (*btcjson.TxRawResult, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q: %w", txid, err)
	}

	tx, err := c.base.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw transaction %s: %w", txid, err)
	}
	return tx, nil
}

// DecodeTransaction deserializes the hex of a verbose transaction result
// into its wire form.
func (c *Client) DecodeTransaction(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx hex: %w", err)
	}

	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return &msgTx, nil
}

// Block fetches the verbose form of a block by hash.
func (c *Client) Block(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	block, err := c.base.GetBlockVerbose(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	return block, nil
}

// BlockCount returns the current chain height.
func (c *Client) BlockCount() (int64, error) {
	count, err := c.base.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get block count: %w", err)
	}
	return count, nil
}

// ChainInfo returns the node's blockchain info. Doubles as the health check:
// if this succeeds, the RPC endpoint is reachable and authenticated.
func (c *Client) ChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	info, err := c.base.GetBlockChainInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get blockchain info: %w", err)
	}
	return info, nil
}

func hasRPCErrorCode(err error, code btcjson.RPCErrorCode) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

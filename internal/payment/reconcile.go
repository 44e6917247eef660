package payment

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// TxFetcher resolves a transaction id to its verbose decoding. Satisfied by
// *node.Client; tests substitute a fake.
type TxFetcher interface {
	RawTransaction(txid string) (*btcjson.TxRawResult, error)
}

// settlement is the accounting view of one confirmed payment: where the
// funds came from, where they went, what came back, and what the miner kept.
type settlement struct {
	inputAddress  string
	inputAmount   btcutil.Amount
	outputAddress string
	outputAmount  btcutil.Amount
	changeAddress string
	changeAmount  btcutil.Amount
	fee           btcutil.Amount
}

// reconcile derives the settlement of tx.
//
// Inputs are resolved by fetching each vin's funding transaction and reading
// the spent prevout; the reported input address is the first prevout's. The
// trader output is the vout paying traderAddr. Change is the first vout
// paying anywhere else; a payment that consumed its inputs exactly has none.
// The fee is what remains of the inputs after outputs and change, and a
// well-formed wallet transaction always leaves a positive remainder.
func reconcile(tx *btcjson.TxRawResult, fetch TxFetcher, traderAddr string) (*settlement, error) {
	if len(tx.Vin) == 0 {
		return nil, fmt.Errorf("transaction %s has no inputs", tx.Txid)
	}

	s := &settlement{}

	for i, vin := range tx.Vin {
		if vin.IsCoinBase() {
			return nil, fmt.Errorf("transaction %s input %d is a coinbase", tx.Txid, i)
		}

		funding, err := fetch.RawTransaction(vin.Txid)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input %d of %s: %w", i, tx.Txid, err)
		}
		if int(vin.Vout) >= len(funding.Vout) {
			return nil, fmt.Errorf("input %d of %s spends missing output %s:%d",
				i, tx.Txid, vin.Txid, vin.Vout)
		}

		prevout := funding.Vout[vin.Vout]
		value, err := btcutil.NewAmount(prevout.Value)
		if err != nil {
			return nil, fmt.Errorf("bad prevout value %v: %w", prevout.Value, err)
		}
		s.inputAmount += value

		if i == 0 {
			addr, err := voutAddress(prevout)
			if err != nil {
				return nil, fmt.Errorf("failed to read input address of %s: %w", tx.Txid, err)
			}
			s.inputAddress = addr
		}
	}

	for _, vout := range tx.Vout {
		addr, err := voutAddress(vout)
		if err != nil {
			return nil, fmt.Errorf("failed to read output %d address of %s: %w", vout.N, tx.Txid, err)
		}
		value, err := btcutil.NewAmount(vout.Value)
		if err != nil {
			return nil, fmt.Errorf("bad output value %v: %w", vout.Value, err)
		}

		switch {
		case addr == traderAddr && s.outputAddress == "":
			s.outputAddress = addr
			s.outputAmount = value
		case addr != traderAddr && s.changeAddress == "":
			s.changeAddress = addr
			s.changeAmount = value
		}
	}

	if s.outputAddress == "" {
		return nil, fmt.Errorf("transaction %s pays nothing to trader address %s", tx.Txid, traderAddr)
	}

	s.fee = s.inputAmount - s.outputAmount - s.changeAmount
	if s.fee <= 0 {
		return nil, fmt.Errorf("non-positive fee %v for transaction %s", s.fee, tx.Txid)
	}

	return s, nil
}

// voutAddress extracts the destination address of an output. Newer nodes
// report addresses directly; older ones only carry the script, so fall back
// to decoding the pkScript against the regtest params.
func voutAddress(vout btcjson.Vout) (string, error) {
	if len(vout.ScriptPubKey.Addresses) > 0 {
		return vout.ScriptPubKey.Addresses[0], nil
	}

	script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
	if err != nil {
		return "", fmt.Errorf("bad scriptPubKey hex: %w", err)
	}

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, &chaincfg.RegressionNetParams)
	if err != nil {
		return "", fmt.Errorf("failed to extract address from script: %w", err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("script pays no extractable address")
	}
	return addrs[0].EncodeAddress(), nil
}

// Package report renders, parses, and validates the ten-line payment report
// file. The field order is the persisted contract and never changes:
//
//	1. transaction id
//	2. miner input address
//	3. miner input amount (BTC)
//	4. trader output address
//	5. trader output amount (BTC)
//	6. miner change address (empty when the payment had no change)
//	7. miner change amount (BTC)
//	8. transaction fee (BTC)
//	9. confirming block height
//	10. confirming block hash
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// NumFields is the number of lines a rendered report always has.
const NumFields = 10

// Report carries the derived accounting fields of one confirmed payment.
// Amounts are satoshi-precise so the fee identity survives formatting.
type Report struct {
	TxID                string
	MinerInputAddress   string
	MinerInputAmount    btcutil.Amount
	TraderOutputAddress string
	TraderOutputAmount  btcutil.Amount
	MinerChangeAddress  string
	MinerChangeAmount   btcutil.Amount
	Fee                 btcutil.Amount
	BlockHeight         int64
	BlockHash           string
}

// FormatAmount renders an amount as fixed 8-decimal BTC, the canonical form
// used for every money field in the report.
func FormatAmount(a btcutil.Amount) string {
	return strconv.FormatFloat(a.ToBTC(), 'f', 8, 64)
}

// Lines returns the report's fields in file order.
func (r *Report) Lines() []string {
	return []string{
		r.TxID,
		r.MinerInputAddress,
		FormatAmount(r.MinerInputAmount),
		r.TraderOutputAddress,
		FormatAmount(r.TraderOutputAmount),
		r.MinerChangeAddress,
		FormatAmount(r.MinerChangeAmount),
		FormatAmount(r.Fee),
		strconv.FormatInt(r.BlockHeight, 10),
		r.BlockHash,
	}
}

func (r *Report) render() string {
	return strings.Join(r.Lines(), "\n") + "\n"
}

// WriteTo writes the rendered report, one field per line, each line
// newline-terminated.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.render())
	return int64(n), err
}

// WriteFile writes the rendered report to path, replacing any previous run's
// file.
func (r *Report) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(r.render()), 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Parse is the inverse of WriteTo. It requires exactly ten lines in field
// order; a missing trailing newline is tolerated.
func Parse(data []byte) (*Report, error) {
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != NumFields {
		return nil, fmt.Errorf("report has %d lines, want %d", len(lines), NumFields)
	}

	inputAmount, err := parseAmount(lines[2])
	if err != nil {
		return nil, fmt.Errorf("bad miner input amount: %w", err)
	}
	outputAmount, err := parseAmount(lines[4])
	if err != nil {
		return nil, fmt.Errorf("bad trader output amount: %w", err)
	}
	changeAmount, err := parseAmount(lines[6])
	if err != nil {
		return nil, fmt.Errorf("bad miner change amount: %w", err)
	}
	fee, err := parseAmount(lines[7])
	if err != nil {
		return nil, fmt.Errorf("bad fee: %w", err)
	}
	height, err := strconv.ParseInt(lines[8], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad block height: %w", err)
	}

	return &Report{
		TxID:                lines[0],
		MinerInputAddress:   lines[1],
		MinerInputAmount:    inputAmount,
		TraderOutputAddress: lines[3],
		TraderOutputAmount:  outputAmount,
		MinerChangeAddress:  lines[5],
		MinerChangeAmount:   changeAmount,
		Fee:                 fee,
		BlockHeight:         height,
		BlockHash:           lines[9],
	}, nil
}

func parseAmount(s string) (btcutil.Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return btcutil.NewAmount(f)
}

// Validate checks the report's internal consistency:
//   - txid and block hash are well-formed hashes
//   - the fee equals input minus output minus change, exactly
//   - a present change address differs from the trader's address
//   - amounts are non-negative, the fee is positive, the height non-negative
func (r *Report) Validate() error {
	if _, err := chainhash.NewHashFromStr(r.TxID); err != nil {
		return fmt.Errorf("invalid txid %q: %w", r.TxID, err)
	}
	if _, err := chainhash.NewHashFromStr(r.BlockHash); err != nil {
		return fmt.Errorf("invalid block hash %q: %w", r.BlockHash, err)
	}

	if r.MinerInputAmount < 0 || r.TraderOutputAmount < 0 || r.MinerChangeAmount < 0 {
		return fmt.Errorf("negative amount in report")
	}
	if r.Fee <= 0 {
		return fmt.Errorf("fee must be positive, got %v", r.Fee)
	}

	if got := r.MinerInputAmount - r.TraderOutputAmount - r.MinerChangeAmount; got != r.Fee {
		return fmt.Errorf("fee mismatch: input - output - change = %s, fee field = %s",
			FormatAmount(got), FormatAmount(r.Fee))
	}

	if r.MinerChangeAddress != "" && r.MinerChangeAddress == r.TraderOutputAddress {
		return fmt.Errorf("change address equals trader address: %s", r.MinerChangeAddress)
	}

	if r.BlockHeight < 0 {
		return fmt.Errorf("negative block height: %d", r.BlockHeight)
	}

	return nil
}

package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

const (
	testTxID      = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	testBlockHash = "0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"
)

func sampleReport() *Report {
	return &Report{
		TxID:                testTxID,
		MinerInputAddress:   "bcrt1qminerinputaddressxxxxxxxxxxxxxxxxxxx",
		MinerInputAmount:    50 * btcutil.SatoshiPerBitcoin,
		TraderOutputAddress: "bcrt1qtraderoutputaddressxxxxxxxxxxxxxxxx",
		TraderOutputAmount:  20 * btcutil.SatoshiPerBitcoin,
		MinerChangeAddress:  "bcrt1qminerchangeaddressxxxxxxxxxxxxxxxxx",
		MinerChangeAmount:   2999900000, // 29.999 BTC
		Fee:                 100000,     // 0.001 BTC
		BlockHeight:         102,
		BlockHash:           testBlockHash,
	}
}

func TestReport_Lines(t *testing.T) {
	lines := sampleReport().Lines()
	require.Len(t, lines, NumFields)

	want := []string{
		testTxID,
		"bcrt1qminerinputaddressxxxxxxxxxxxxxxxxxxx",
		"50.00000000",
		"bcrt1qtraderoutputaddressxxxxxxxxxxxxxxxx",
		"20.00000000",
		"bcrt1qminerchangeaddressxxxxxxxxxxxxxxxxx",
		"29.99900000",
		"0.00100000",
		"102",
		testBlockHash,
	}
	require.Equal(t, want, lines)
}

func TestReport_WriteTo_TenLines(t *testing.T) {
	var buf bytes.Buffer
	_, err := sampleReport().WriteTo(&buf)
	require.NoError(t, err)

	out := buf.String()
	require.True(t, strings.HasSuffix(out, "\n"), "report must end with a newline")
	require.Len(t, strings.Split(strings.TrimSuffix(out, "\n"), "\n"), NumFields)
}

func TestReport_WriteFile_ParseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	rep := sampleReport()
	require.NoError(t, rep.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, rep, parsed)
}

func TestReport_Parse_LineCount(t *testing.T) {
	_, err := Parse([]byte("only\nfour\nshort\nlines\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "4 lines")
}

func TestReport_Parse_EmptyChangeAddress(t *testing.T) {
	rep := sampleReport()
	rep.MinerChangeAddress = ""
	rep.MinerChangeAmount = 0
	rep.Fee = rep.MinerInputAmount - rep.TraderOutputAmount

	var buf bytes.Buffer
	_, err := rep.WriteTo(&buf)
	require.NoError(t, err)

	parsed, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Empty(t, parsed.MinerChangeAddress)
	require.Equal(t, rep.Fee, parsed.Fee)
}

func TestReport_Validate(t *testing.T) {
	require.NoError(t, sampleReport().Validate())
}

func TestReport_Validate_FeeIdentity(t *testing.T) {
	rep := sampleReport()
	rep.Fee += 1 // one satoshi off
	err := rep.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "fee mismatch")
}

func TestReport_Validate_ChangeEqualsTrader(t *testing.T) {
	rep := sampleReport()
	rep.MinerChangeAddress = rep.TraderOutputAddress
	err := rep.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "change address equals trader address")
}

func TestReport_Validate_BadHashes(t *testing.T) {
	rep := sampleReport()
	rep.TxID = "not-a-txid"
	require.Error(t, rep.Validate())

	rep = sampleReport()
	rep.BlockHash = "zz"
	require.Error(t, rep.Validate())
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "0.00000001", FormatAmount(1))
	require.Equal(t, "1.00000000", FormatAmount(btcutil.SatoshiPerBitcoin))
	require.Equal(t, "29.99900000", FormatAmount(2999900000))
	require.Equal(t, "0.00000000", FormatAmount(0))
}

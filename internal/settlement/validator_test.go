package settlement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/senku-elixir/bridge/internal/solana"
)

const (
	testMint     = "C5hkCo3nE6F9K6z67tzridUnbNGXfs8HBxxanFzCm58K"
	testTreasury = "7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp"
	testSender   = "4Nd1mYvZ2vGJZZeqqJv7mHukyGq3UdCyH8semMe2Qjy8"
)

// fakeFetcher serves canned transactions keyed by signature.
type fakeFetcher struct {
	mu    sync.Mutex
	txs   map[string]*solana.ParsedTransaction
	calls int
	err   error
}

func (f *fakeFetcher) GetParsedTransaction(ctx context.Context, signature, commitment string) (*solana.ParsedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.txs[signature], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// paymentTx builds a finalized transaction carrying one treasury transfer.
func paymentTx(blockTime int64, transfers ...solana.TokenTransfer) *solana.ParsedTransaction {
	instrs := make([]solana.Instruction, 0, len(transfers))
	for _, t := range transfers {
		mint := ""
		if t.Mint != "" {
			mint = `,"mint":"` + t.Mint + `"`
		}
		instrs = append(instrs, solana.Instruction{
			Program: "spl-token",
			Parsed: []byte(`{"type":"transfer","info":{` +
				`"authority":"` + t.Authority + `",` +
				`"source":"` + t.Source + `",` +
				`"destination":"` + t.Destination + `",` +
				`"amount":"` + t.Amount + `"` + mint + `}}`),
		})
	}
	return &solana.ParsedTransaction{
		Slot:      1,
		BlockTime: &blockTime,
		Meta: &solana.TransactionMeta{
			PostTokenBalances: []solana.TokenBalance{{Mint: testMint}},
		},
		Message: &solana.TransactionMessage{Instructions: instrs},
	}
}

func testValidator(fetcher TxFetcher) *Validator {
	v := NewValidator(fetcher, testMint, testTreasury, "finalized", time.Hour)
	v.now = func() time.Time { return time.Unix(2_000_000_000, 0) }
	return v
}

func recentBlockTime() int64 {
	return 2_000_000_000 - 60
}

func validProof() *Proof {
	return &Proof{TxHash: "sig", Sender: testSender, Amount: "150000000000"}
}

func TestVerifyAccepts(t *testing.T) {
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
		"sig": paymentTx(recentBlockTime(), solana.TokenTransfer{
			Authority:   testSender,
			Destination: testTreasury,
			Amount:      "150000000000",
		}),
	}}

	if err := testValidator(fetcher).Verify(context.Background(), validProof()); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}
}

func TestVerifyAcceptsCaseVariantAddresses(t *testing.T) {
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
		"sig": paymentTx(recentBlockTime(), solana.TokenTransfer{
			Authority:   strings.ToLower(testSender),
			Destination: strings.ToUpper(testTreasury),
			Amount:      "150000000000",
		}),
	}}

	if err := testValidator(fetcher).Verify(context.Background(), validProof()); err != nil {
		t.Fatalf("case-variant addresses rejected: %v", err)
	}
}

func TestVerifyNotFound(t *testing.T) {
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrTxNotFound) {
		t.Errorf("expected ErrTxNotFound, got %v", err)
	}
}

func TestVerifyFailedTx(t *testing.T) {
	tx := paymentTx(recentBlockTime(), solana.TokenTransfer{
		Authority: testSender, Destination: testTreasury, Amount: "150000000000",
	})
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{"sig": tx}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrTxFailed) {
		t.Errorf("expected ErrTxFailed, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	// Two hours old, window is one hour.
	old := int64(2_000_000_000 - 7200)
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
		"sig": paymentTx(old, solana.TokenTransfer{
			Authority: testSender, Destination: testTreasury, Amount: "150000000000",
		}),
	}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrTxExpired) {
		t.Errorf("expected ErrTxExpired, got %v", err)
	}
}

func TestVerifyMissingBlockTime(t *testing.T) {
	tx := paymentTx(recentBlockTime(), solana.TokenTransfer{
		Authority: testSender, Destination: testTreasury, Amount: "150000000000",
	})
	tx.BlockTime = nil

	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{"sig": tx}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrTxExpired) {
		t.Errorf("expected ErrTxExpired for missing block time, got %v", err)
	}
}

func TestVerifyWrongAsset(t *testing.T) {
	tx := paymentTx(recentBlockTime(), solana.TokenTransfer{
		Authority: testSender, Destination: testTreasury, Amount: "150000000000",
	})
	tx.Meta.PostTokenBalances = []solana.TokenBalance{{Mint: "SomeOtherMint"}}

	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{"sig": tx}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrWrongAsset) {
		t.Errorf("expected ErrWrongAsset, got %v", err)
	}
}

func TestVerifyNoTransfer(t *testing.T) {
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
		"sig": paymentTx(recentBlockTime()),
	}}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if !errors.Is(err, ErrNoTransferFound) {
		t.Errorf("expected ErrNoTransferFound, got %v", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	base := solana.TokenTransfer{
		Authority:   testSender,
		Destination: testTreasury,
		Amount:      "150000000000",
	}

	cases := []struct {
		name     string
		transfer solana.TokenTransfer
	}{
		{"wrong authority", func() solana.TokenTransfer { t := base; t.Authority = "SomeoneElse"; return t }()},
		{"wrong destination", func() solana.TokenTransfer { t := base; t.Destination = "NotTheTreasury"; return t }()},
		{"wrong amount", func() solana.TokenTransfer { t := base; t.Amount = "1"; return t }()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
				"sig": paymentTx(recentBlockTime(), tc.transfer),
			}}
			err := testValidator(fetcher).Verify(context.Background(), validProof())
			if !errors.Is(err, ErrTransferMismatch) {
				t.Errorf("expected ErrTransferMismatch, got %v", err)
			}
			var mismatch *MismatchError
			if !errors.As(err, &mismatch) || len(mismatch.Candidates) != 1 {
				t.Errorf("mismatch should carry candidates: %v", err)
			}
		})
	}
}

func TestVerifyMatchesAmongSeveralTransfers(t *testing.T) {
	// The matching transfer is not the first candidate. Earlier
	// transfers in the same transaction must not shadow it.
	fetcher := &fakeFetcher{txs: map[string]*solana.ParsedTransaction{
		"sig": paymentTx(recentBlockTime(),
			solana.TokenTransfer{Authority: "OtherWallet", Destination: "OtherAccount", Amount: "7"},
			solana.TokenTransfer{Authority: testSender, Destination: testTreasury, Amount: "1"},
			solana.TokenTransfer{Authority: testSender, Destination: testTreasury, Amount: "150000000000"},
		),
	}}

	if err := testValidator(fetcher).Verify(context.Background(), validProof()); err != nil {
		t.Fatalf("matching transfer shadowed by earlier candidates: %v", err)
	}
}

func TestVerifyFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("rpc: connection refused")}
	err := testValidator(fetcher).Verify(context.Background(), validProof())
	if err == nil {
		t.Fatal("expected error")
	}
	// Transport failures are not any of the rejection sentinels.
	if errors.Is(err, ErrTxNotFound) || errors.Is(err, ErrTransferMismatch) {
		t.Errorf("transport error misclassified: %v", err)
	}
}

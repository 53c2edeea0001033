package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"github.com/senku-elixir/bridge/internal/evm"
	"github.com/senku-elixir/bridge/internal/keys"
	"github.com/senku-elixir/bridge/internal/settlement"
	"github.com/senku-elixir/bridge/internal/solana"
	"github.com/senku-elixir/bridge/internal/storage"
	"github.com/senku-elixir/bridge/pkg/logging"
)

const apiTreasury = "7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp"

type stubFetcher struct {
	txs map[string]*solana.ParsedTransaction
}

func (f *stubFetcher) GetParsedTransaction(ctx context.Context, signature, commitment string) (*solana.ParsedTransaction, error) {
	return f.txs[signature], nil
}

type stubPayer struct{}

func (p *stubPayer) TransferToken(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	return "0xpayout", nil
}

type stubChain struct{}

func (c *stubChain) SendNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	return "0xseed", nil
}

func (c *stubChain) ClaimReward(ctx context.Context, playerKey *ecdsa.PrivateKey, controller common.Address) (string, error) {
	return "0xclaim", nil
}

type apiEnv struct {
	srv     *httptest.Server
	server  *Server
	txHash  string
	sender  string
	cleanup func()
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "bridge-api-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	sender := base58.Encode(bytes.Repeat([]byte{7}, 32))
	txHash := base58.Encode(bytes.Repeat([]byte{1}, 64))
	blockTime := time.Now().Unix() - 60

	fetcher := &stubFetcher{txs: map[string]*solana.ParsedTransaction{
		txHash: {
			Slot:      1,
			BlockTime: &blockTime,
			Meta: &solana.TransactionMeta{
				PostTokenBalances: []solana.TokenBalance{{Mint: "TestMint"}},
			},
			Message: &solana.TransactionMessage{
				Instructions: []solana.Instruction{{
					Program: "spl-token",
					Parsed: []byte(`{"type":"transfer","info":{` +
						`"authority":"` + sender + `",` +
						`"destination":"` + apiTreasury + `",` +
						`"amount":"150000000000"}}`),
				}},
			},
		},
	}}

	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})
	validator := settlement.NewValidator(fetcher, "TestMint", apiTreasury, "finalized", time.Hour)
	settlementSvc := settlement.NewService(validator, store, &stubPayer{}, 8, 18, log)

	manager, err := keys.NewManager("derivation-secret", "encryption-passphrase")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	keySvc := keys.NewService(manager, store, &stubChain{},
		common.HexToAddress("0x3A2CBB7F0A7Cfa7C16F8b15bCfFa5c7C0864375E"),
		big.NewInt(1), log)

	server := NewServer(settlementSvc, keySvc, log)
	ts := httptest.NewServer(corsMiddleware(server.requestIDMiddleware(server.routes())))

	return &apiEnv{
		srv:    ts,
		server: server,
		txHash: txHash,
		sender: sender,
		cleanup: func() {
			ts.Close()
			store.Close()
			os.RemoveAll(tmpDir)
		},
	}
}

func (e *apiEnv) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (e *apiEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func (e *apiEnv) swapRequest() map[string]string {
	return map[string]string{
		"txHash":    e.txHash,
		"sender":    e.sender,
		"recipient": "0x1111111111111111111111111111111111111111",
		"amount":    "150000000000",
	}
}

func TestSubmitSwapEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	resp, body := env.post(t, "/swap", env.swapRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["status"] != "completed" {
		t.Errorf("expected completed swap, got %v", body["status"])
	}
	if body["payout_tx_hash"] != "0xpayout" {
		t.Errorf("payout hash missing: %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("no request ID header")
	}
}

func TestSubmitSwapDuplicate(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	if resp, _ := env.post(t, "/swap", env.swapRequest()); resp.StatusCode != http.StatusOK {
		t.Fatalf("first submit failed: %d", resp.StatusCode)
	}
	resp, _ := env.post(t, "/swap", env.swapRequest())
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestSubmitSwapRejections(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	// Malformed JSON
	resp, err := http.Post(env.srv.URL+"/swap", "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected 400, got %d", resp.StatusCode)
	}

	// Amount mismatch against the chain; the body lists what the
	// transaction actually transferred
	req := env.swapRequest()
	req["amount"] = "1"
	resp, body := env.post(t, "/swap", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mismatch: expected 400, got %d", resp.StatusCode)
	}
	candidates, ok := body["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		t.Fatalf("mismatch body has no candidates: %v", body)
	}
	first, _ := candidates[0].(map[string]interface{})
	if first["authority"] != env.sender {
		t.Errorf("candidate authority = %v, want %v", first["authority"], env.sender)
	}

	// Unknown transaction
	req = env.swapRequest()
	req["txHash"] = base58.Encode(bytes.Repeat([]byte{9}, 64))
	resp, _ = env.post(t, "/swap", req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tx: expected 404, got %d", resp.StatusCode)
	}
}

func TestSwapStatusEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	resp, _ := env.get(t, "/swap/"+env.txHash)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before submission, got %d", resp.StatusCode)
	}

	resp, _ = env.get(t, "/swap/garbage")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed hash, got %d", resp.StatusCode)
	}

	env.post(t, "/swap", env.swapRequest())

	resp, body := env.get(t, "/swap/"+env.txHash)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "completed" {
		t.Errorf("unexpected status: %v", body["status"])
	}
}

func TestListSwapsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	env.post(t, "/swap", env.swapRequest())

	resp, body := env.get(t, "/swaps?status=completed")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	swaps, ok := body["swaps"].([]interface{})
	if !ok || len(swaps) != 1 {
		t.Errorf("expected 1 completed swap, got %v", body["swaps"])
	}

	resp, _ = env.get(t, "/swaps?status=bogus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad filter, got %d", resp.StatusCode)
	}

	resp, _ = env.get(t, "/swaps?limit=nope")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestProvisionWalletEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	resp, body := env.post(t, "/keys", map[string]string{"address": env.sender})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["evmAddress"] == "" {
		t.Error("no evm address in response")
	}
	if body["created"] != true {
		t.Error("first provision should report created")
	}

	resp, body = env.post(t, "/keys", map[string]string{"address": env.sender})
	if resp.StatusCode != http.StatusOK || body["created"] != false {
		t.Errorf("second provision should be idempotent: %d %v", resp.StatusCode, body)
	}

	resp, _ = env.post(t, "/keys", map[string]string{"address": "bad!"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad address, got %d", resp.StatusCode)
	}
}

func TestClaimRewardEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	resp, _ := env.post(t, "/rewards/claim", map[string]string{"address": env.sender})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before provisioning, got %d", resp.StatusCode)
	}

	env.post(t, "/keys", map[string]string{"address": env.sender})

	resp, body := env.post(t, "/rewards/claim", map[string]string{"address": env.sender})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["txHash"] != "0xclaim" {
		t.Errorf("unexpected claim hash: %v", body["txHash"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health payload: %v", body)
	}
}

func TestServerWriteTimeoutCoversConfirmation(t *testing.T) {
	env := newAPIEnv(t)
	defer env.cleanup()

	if err := env.server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer env.server.Stop()

	// A successful payout can hold the response open for the full
	// confirmation wait; the server must not cut the write before then.
	if got := env.server.server.WriteTimeout; got <= evm.DefaultConfirmTimeout {
		t.Errorf("write timeout %v does not cover the confirmation wait %v", got, evm.DefaultConfirmTimeout)
	}
}

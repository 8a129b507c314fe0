package solanarpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

const (
	// MaxMultipleAccounts is the getMultipleAccounts per-request limit.
	MaxMultipleAccounts = 100
	// MaxSignatureStatuses is the getSignatureStatuses per-request limit.
	MaxSignatureStatuses = 256

	DefaultDevnetURL = "https://api.devnet.solana.com"
)

var (
	ErrMissingRPCURL = errors.New("missing rpc url")
	ErrRPCError      = errors.New("solana rpc error")
	ErrTooManyKeys   = errors.New("too many keys for a single request")
)

type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// RPCError is a JSON-RPC error object. Data carries method-specific detail,
// e.g. simulation logs for a rejected sendTransaction.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrRPCError.Error(), e.Code, e.Message)
}

func (e *RPCError) Unwrap() error { return ErrRPCError }

// Logs returns simulation log lines attached to the error, if any.
func (e *RPCError) Logs() []string {
	if len(e.Data) == 0 {
		return nil
	}
	var d struct {
		Logs []string `json:"logs"`
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil
	}
	return d.Logs
}

// TransactionErr returns the transaction error of a failed preflight
// simulation, or nil.
func (e *RPCError) TransactionErr() json.RawMessage {
	if len(e.Data) == 0 {
		return nil
	}
	var d struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(e.Data, &d); err != nil || string(d.Err) == "null" {
		return nil
	}
	return d.Err
}

type Client struct {
	rpcURL string
	http   *http.Client
}

func New(rpcURL string, httpClient *http.Client) *Client {
	rpcURL = strings.TrimSpace(rpcURL)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		rpcURL: rpcURL,
		http:   httpClient,
	}
}

func (c *Client) URL() string { return c.rpcURL }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func isRateLimitedRPCError(code int, message string) bool {
	if code == 429 || code == -32429 {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(message))
	return strings.Contains(msg, "rate") && strings.Contains(msg, "limit")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rpcCall retries only on rate limiting and undecodable responses; every other
// failure is returned to the caller as is.
func (c *Client) rpcCall(ctx context.Context, method string, params any, out any) error {
	if c == nil {
		return errors.New("nil rpc client")
	}
	if strings.TrimSpace(c.rpcURL) == "" {
		return ErrMissingRPCURL
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	backoff := 1 * time.Second
	maxBackoff := 10 * time.Second
	maxAttempts := 7

	retry := func(attempt int) error {
		if attempt >= maxAttempts {
			return errors.New("no attempts left")
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxBackoff)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: http status=%d", ErrRPCError, resp.StatusCode)
			if retry(attempt) != nil {
				return lastErr
			}
			continue
		}

		var rr rpcResponse
		if err := json.Unmarshal(raw, &rr); err != nil {
			lastErr = fmt.Errorf("decode rpc response: %w", err)
			if retry(attempt) != nil {
				return lastErr
			}
			continue
		}
		if rr.Error != nil {
			lastErr = &RPCError{Code: rr.Error.Code, Message: rr.Error.Message, Data: rr.Error.Data}
			if isRateLimitedRPCError(rr.Error.Code, rr.Error.Message) && retry(attempt) == nil {
				continue
			}
			return lastErr
		}
		if out == nil {
			return nil
		}
		if len(rr.Result) == 0 {
			return fmt.Errorf("%w: empty result", ErrRPCError)
		}
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("%w: no response", ErrRPCError)
}

func decodeBase64Data(data []any) ([]byte, error) {
	if len(data) < 1 {
		return nil, errors.New("missing account data")
	}
	s, ok := data[0].(string)
	if !ok {
		return nil, errors.New("unexpected account data encoding")
	}
	return base64.StdEncoding.DecodeString(s)
}

func (c *Client) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.rpcCall(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": CommitmentConfirmed}}, &resp); err != nil {
		return out, err
	}

	bh, err := solana.ParsePubkey(resp.Value.Blockhash)
	if err != nil {
		return out, fmt.Errorf("invalid blockhash: %w", err)
	}
	copy(out[:], bh[:])
	return out, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error) {
	if len(tx) == 0 {
		return "", errors.New("empty tx")
	}
	b64 := base64.StdEncoding.EncodeToString(tx)
	var resp string
	params := []any{
		b64,
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       skipPreflight,
			"preflightCommitment": CommitmentConfirmed,
		},
	}
	if err := c.rpcCall(ctx, "sendTransaction", params, &resp); err != nil {
		return "", err
	}
	return resp, nil
}

// SignatureStatus mirrors one entry of getSignatureStatuses. Err is the raw
// transaction error (nil on success).
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus Commitment      `json:"confirmationStatus"`
}

func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Reached reports whether the status is at or beyond the target commitment.
func (s SignatureStatus) Reached(target Commitment) bool {
	rank := map[Commitment]int{CommitmentProcessed: 1, CommitmentConfirmed: 2, CommitmentFinalized: 3}
	return rank[s.ConfirmationStatus] >= rank[target] && rank[s.ConfirmationStatus] > 0
}

// SignatureStatuses returns one entry per signature; nil for unknown signatures.
func (c *Client) SignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	if len(signatures) > MaxSignatureStatuses {
		return nil, ErrTooManyKeys
	}
	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{signatures, map[string]any{"searchTransactionHistory": false}}
	if err := c.rpcCall(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) != len(signatures) {
		return nil, fmt.Errorf("%w: getSignatureStatuses returned %d entries for %d signatures", ErrRPCError, len(resp.Value), len(signatures))
	}
	return resp.Value, nil
}

func (c *Client) BalanceLamports(ctx context.Context, pubkey solana.Pubkey) (uint64, error) {
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.rpcCall(ctx, "getBalance", []any{pubkey.Base58(), map[string]any{"commitment": CommitmentConfirmed}}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// AccountExists reports whether pubkey currently holds an account.
func (c *Client) AccountExists(ctx context.Context, pubkey solana.Pubkey) (bool, error) {
	var resp struct {
		Value *struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	params := []any{
		pubkey.Base58(),
		map[string]any{
			"encoding":   "base64",
			"commitment": CommitmentConfirmed,
			"dataSlice":  map[string]any{"offset": 0, "length": 0},
		},
	}
	if err := c.rpcCall(ctx, "getAccountInfo", params, &resp); err != nil {
		return false, err
	}
	return resp.Value != nil, nil
}

// MultipleAccountsLamports fetches balances for up to MaxMultipleAccounts keys in
// one request. Accounts that do not exist report 0. The result is index-aligned
// with pubkeys.
func (c *Client) MultipleAccountsLamports(ctx context.Context, pubkeys []solana.Pubkey) ([]uint64, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	if len(pubkeys) > MaxMultipleAccounts {
		return nil, ErrTooManyKeys
	}

	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = pk.Base58()
	}
	var resp struct {
		Value []*struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	params := []any{
		keys,
		map[string]any{
			"encoding":   "base64",
			"commitment": CommitmentConfirmed,
			"dataSlice":  map[string]any{"offset": 0, "length": 0},
		},
	}
	if err := c.rpcCall(ctx, "getMultipleAccounts", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) != len(pubkeys) {
		return nil, fmt.Errorf("%w: getMultipleAccounts returned %d entries for %d keys", ErrRPCError, len(resp.Value), len(pubkeys))
	}

	out := make([]uint64, len(pubkeys))
	for i, v := range resp.Value {
		if v != nil {
			out[i] = v.Lamports
		}
	}
	return out, nil
}

func (c *Client) RequestAirdrop(ctx context.Context, pubkey solana.Pubkey, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", errors.New("lamports required")
	}
	var sig string
	if err := c.rpcCall(ctx, "requestAirdrop", []any{pubkey.Base58(), lamports}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// ProgramAccount is one getProgramAccounts entry. Err is set, and Pubkey and
// Data may be empty, when the entry itself could not be decoded.
type ProgramAccount struct {
	Pubkey solana.Pubkey
	Data   []byte
	Err    error
}

// ProgramAccountsByDataSize returns every account owned by programID whose data is
// exactly dataSize bytes. A malformed entry is returned with Err set rather than
// failing the call.
func (c *Client) ProgramAccountsByDataSize(ctx context.Context, programID solana.Pubkey, dataSize uint64) ([]ProgramAccount, error) {
	if dataSize == 0 {
		return nil, errors.New("dataSize required")
	}

	type resultItem struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data []any `json:"data"`
		} `json:"account"`
	}

	var resp []resultItem
	params := []any{
		programID.Base58(),
		map[string]any{
			"encoding":   "base64",
			"commitment": CommitmentConfirmed,
			"filters": []any{
				map[string]any{"dataSize": dataSize},
			},
		},
	}
	if err := c.rpcCall(ctx, "getProgramAccounts", params, &resp); err != nil {
		return nil, err
	}

	out := make([]ProgramAccount, 0, len(resp))
	for _, it := range resp {
		pk, err := solana.ParsePubkey(it.Pubkey)
		if err != nil {
			out = append(out, ProgramAccount{Err: fmt.Errorf("getProgramAccounts pubkey %q: %w", it.Pubkey, err)})
			continue
		}
		b, err := decodeBase64Data(it.Account.Data)
		if err != nil {
			out = append(out, ProgramAccount{Pubkey: pk, Err: fmt.Errorf("getProgramAccounts %s: %w", it.Pubkey, err)})
			continue
		}
		out = append(out, ProgramAccount{
			Pubkey: pk,
			Data:   b,
		})
	}
	return out, nil
}

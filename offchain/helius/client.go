// Package helius talks to Helius-hosted Solana RPC endpoints: URL construction
// from an API key and the getPriorityFeeEstimate extension.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

var (
	ErrMissingAPIKey = errors.New("missing helius api key")
	ErrRPCError      = errors.New("helius rpc error")
)

// DefaultLamportsPerSignature is the base fee used when the endpoint does not
// report one.
const DefaultLamportsPerSignature uint64 = 5000

type Cluster string

const (
	ClusterMainnet Cluster = "mainnet"
	ClusterDevnet  Cluster = "devnet"
)

func RPCURL(cluster Cluster, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	var host string
	switch cluster {
	case ClusterMainnet, "mainnet-beta":
		host = "https://mainnet.helius-rpc.com"
	case ClusterDevnet, "":
		host = "https://devnet.helius-rpc.com"
	default:
		return "", fmt.Errorf("unsupported helius cluster: %q", cluster)
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveURL returns rpcURL when set, otherwise builds one from apiKey. The
// faucet lives on devnet, so an empty cluster means devnet. It returns "" with
// no error when neither is configured.
func ResolveURL(rpcURL, apiKey string, cluster Cluster) (string, error) {
	if raw := strings.TrimSpace(rpcURL); raw != "" {
		return raw, nil
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", nil
	}
	return RPCURL(cluster, apiKey)
}

// IsHeliusURL reports whether rpcURL points at a Helius endpoint, which is
// what enables priority fee estimation.
func IsHeliusURL(rpcURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rpcURL))
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Hostname(), "helius-rpc.com")
}

type Client struct {
	rpcURL string
	http   *http.Client
}

func NewClient(rpcURL string, httpClient *http.Client) *Client {
	rpcURL = strings.TrimSpace(rpcURL)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		rpcURL: rpcURL,
		http:   httpClient,
	}
}

type PriorityLevel string

const (
	PriorityMin       PriorityLevel = "Min"
	PriorityLow       PriorityLevel = "Low"
	PriorityMedium    PriorityLevel = "Medium"
	PriorityHigh      PriorityLevel = "High"
	PriorityVeryHigh  PriorityLevel = "VeryHigh"
	PriorityUnsafeMax PriorityLevel = "UnsafeMax"
)

// ParsePriorityLevel accepts level names case-insensitively.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	for _, l := range []PriorityLevel{PriorityMin, PriorityLow, PriorityMedium, PriorityHigh, PriorityVeryHigh, PriorityUnsafeMax} {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown priority level %q", s)
}

type PriorityFeeOptions struct {
	PriorityLevel               PriorityLevel `json:"priorityLevel,omitempty"`
	IncludeAllPriorityFeeLevels bool          `json:"includeAllPriorityFeeLevels,omitempty"`
	LookbackSlots               int           `json:"lookbackSlots,omitempty"`
	IncludeVote                 bool          `json:"includeVote,omitempty"`
	Recommended                 bool          `json:"recommended,omitempty"`
	EvaluateEmptySlotAsZero     bool          `json:"evaluateEmptySlotAsZero,omitempty"`
}

type PriorityFeeLevels struct {
	Min       float64 `json:"min,omitempty"`
	Low       float64 `json:"low,omitempty"`
	Medium    float64 `json:"medium,omitempty"`
	High      float64 `json:"high,omitempty"`
	VeryHigh  float64 `json:"veryHigh,omitempty"`
	UnsafeMax float64 `json:"unsafeMax,omitempty"`
}

type PriorityFeeEstimate struct {
	// MicroLamports is the compute-unit price for ComputeBudgetSetComputeUnitPrice.
	MicroLamports uint64
	Levels        *PriorityFeeLevels
}

// PriorityFeeEstimate prices a compute unit for a transaction that writes the
// given accounts.
func (c *Client) PriorityFeeEstimate(
	ctx context.Context,
	accounts []solana.Pubkey,
	opts *PriorityFeeOptions,
) (PriorityFeeEstimate, error) {
	if len(accounts) == 0 {
		return PriorityFeeEstimate{}, fmt.Errorf("accountKeys required")
	}
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = a.Base58()
	}

	params := map[string]any{
		"accountKeys": keys,
	}
	if opts != nil {
		params["options"] = opts
	}

	var out struct {
		PriorityFeeEstimate float64            `json:"priorityFeeEstimate"`
		PriorityFeeLevels   *PriorityFeeLevels `json:"priorityFeeLevels,omitempty"`
	}
	if err := c.rpcCall(ctx, "getPriorityFeeEstimate", []any{params}, &out); err != nil {
		return PriorityFeeEstimate{}, err
	}

	return PriorityFeeEstimate{
		MicroLamports: ceilUint64(out.PriorityFeeEstimate),
		Levels:        out.PriorityFeeLevels,
	}, nil
}

// LamportsPerSignature tries to fetch the current signature fee via JSON-RPC.
// If the RPC method is unavailable, it falls back to DefaultLamportsPerSignature.
func (c *Client) LamportsPerSignature(ctx context.Context) (uint64, error) {
	type feeCalc struct {
		LamportsPerSignature uint64 `json:"lamportsPerSignature"`
	}
	type feeResult struct {
		FeeCalculator feeCalc `json:"feeCalculator"`
	}
	type wrappedFeeResult struct {
		Value feeResult `json:"value"`
	}

	var out1 feeResult
	if err := c.rpcCall(ctx, "getFees", []any{}, &out1); err == nil && out1.FeeCalculator.LamportsPerSignature != 0 {
		return out1.FeeCalculator.LamportsPerSignature, nil
	} else if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var out2 wrappedFeeResult
	if err := c.rpcCall(ctx, "getRecentBlockhash", []any{}, &out2); err == nil && out2.Value.FeeCalculator.LamportsPerSignature != 0 {
		return out2.Value.FeeCalculator.LamportsPerSignature, nil
	} else if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	return DefaultLamportsPerSignature, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (c *Client) rpcCall(ctx context.Context, method string, params any, out any) error {
	if c == nil {
		return errors.New("nil helius client")
	}
	if c.rpcURL == "" {
		return errors.New("empty helius rpc url")
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s http %d", ErrRPCError, method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%w: %s code=%d message=%s", ErrRPCError, method, decoded.Error.Code, decoded.Error.Message)
	}
	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return fmt.Errorf("%w: %s missing result", ErrRPCError, method)
	}
	return json.Unmarshal(decoded.Result, out)
}

func ceilUint64(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	if v >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	return uint64(math.Ceil(v))
}

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"solana-sniper/internal/solana"
)

// DefaultBundleTimeout bounds one sendBundle round trip.
const DefaultBundleTimeout = 10 * time.Second

// BundleSubmitter posts transactions to a Jito-style block-engine relay.
// The relay auctions the bundle to the leader without exposing it to the
// public mempool, which is what makes the submission front-run resistant.
type BundleSubmitter struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// BundleOption configures a BundleSubmitter.
type BundleOption func(*BundleSubmitter)

// WithBundleTimeout sets the per-request timeout.
func WithBundleTimeout(d time.Duration) BundleOption {
	return func(s *BundleSubmitter) {
		s.client.Timeout = d
	}
}

// WithBundleHTTPClient sets a custom http.Client.
func WithBundleHTTPClient(client *http.Client) BundleOption {
	return func(s *BundleSubmitter) {
		s.client = client
	}
}

// NewBundleSubmitter creates a submitter for the given relay endpoint.
func NewBundleSubmitter(endpoint string, opts ...BundleOption) *BundleSubmitter {
	s := &BundleSubmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultBundleTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Submitter = (*BundleSubmitter)(nil)

func (s *BundleSubmitter) Name() string { return "bundle" }

type bundleRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type bundleResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bundleError    `json:"error,omitempty"`
}

type bundleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *bundleError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Submit sends the transactions as one atomic bundle and returns the relay's
// bundle ID. The relay expects base58-encoded transactions in execution order;
// the tip transfer conventionally rides last.
func (s *BundleSubmitter) Submit(ctx context.Context, txs ...*solana.SignedTx) (string, error) {
	if len(txs) == 0 {
		return "", fmt.Errorf("bundle needs at least one transaction")
	}
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = tx.Base58()
	}

	reqBody := bundleRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "sendBundle",
		Params:  []interface{}{encoded},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting bundle: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading bundle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed bundleResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal bundle response: %w", err)
	}
	if parsed.Error != nil {
		return "", parsed.Error
	}

	var bundleID string
	if err := json.Unmarshal(parsed.Result, &bundleID); err != nil {
		return "", fmt.Errorf("unmarshal bundle id: %w", err)
	}
	return bundleID, nil
}

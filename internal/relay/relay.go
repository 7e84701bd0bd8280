// Package relay delivers signed transactions to the cluster, either through
// a plain RPC node or through a bundle relay that shields the transaction
// from the public mempool.
package relay

import (
	"context"
	"fmt"

	"solana-sniper/internal/solana"
)

// Submitter delivers signed transactions. Implementations return a
// provider-side acknowledgement token: the transaction signature for direct
// submission, a bundle ID for relays. Confirmation is always tracked by the
// transaction signature, never by the token.
type Submitter interface {
	// Name identifies the submission path in logs and attempt records.
	Name() string

	// Submit delivers the transactions. Direct submitters accept exactly
	// one; bundle submitters deliver all of them atomically and in order.
	Submit(ctx context.Context, txs ...*solana.SignedTx) (string, error)
}

// DirectSubmitter sends transactions straight to an RPC node.
type DirectSubmitter struct {
	rpc solana.RPCClient
}

// NewDirectSubmitter returns a Submitter backed by the RPC client.
func NewDirectSubmitter(rpc solana.RPCClient) *DirectSubmitter {
	return &DirectSubmitter{rpc: rpc}
}

var _ Submitter = (*DirectSubmitter)(nil)

func (s *DirectSubmitter) Name() string { return "direct" }

// Submit sends one signed transaction with preflight disabled.
func (s *DirectSubmitter) Submit(ctx context.Context, txs ...*solana.SignedTx) (string, error) {
	if len(txs) != 1 {
		return "", fmt.Errorf("direct submission takes exactly one transaction, got %d", len(txs))
	}
	sig, err := s.rpc.SendTransaction(ctx, txs[0].Base64())
	if err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}
	return sig, nil
}

package remote

import (
	"context"
	"net/url"
)

// Prepare requests an unsigned transaction and its signing hash.
func (c *Client) Prepare(ctx context.Context, req PrepareRequest) (*Prepared, error) {
	var out Prepared
	if err := c.post(ctx, "/transactions/prepare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit broadcasts a signed transaction. A rejected transaction is not an
// error here; callers inspect Submitted.Success.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submitted, error) {
	var out Submitted
	if err := c.post(ctx, "/transactions/submit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ViewTransfer returns the on-chain state of the transfer behind a code.
// Unknown codes yield an error matching ErrNotFound.
func (c *Client) ViewTransfer(ctx context.Context, req ViewRequest) (*TransferView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookup)
	defer cancel()
	var out TransferView
	if err := c.post(ctx, "/transfers/view", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionByHash fetches a committed transaction from the ledger node.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookup)
	defer cancel()
	var out Transaction
	if err := c.get(ctx, c.nodeURL+"/transactions/by_hash/"+url.PathEscape(hash), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

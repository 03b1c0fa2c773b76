package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/interstellar-swap/relayer/internal/types"
)

// Client is a minimal Soroban JSON-RPC client covering the calls the
// watcher and submitter need: getLatestLedger, getEvents with cursor
// pagination, and sendTransaction for a prepared, authorized envelope.
// It never builds or signs transactions itself.
type Client struct {
	rpcURL string
	http   *http.Client
}

// NewClient builds a client for the given Soroban RPC endpoint.
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// ContractEvent is one raw event as returned by getEvents. Topics and
// Value are base64 XDR ScVals; decoding is the watcher's job.
type ContractEvent struct {
	ID         string   `json:"id"`
	Ledger     uint32   `json:"ledger"`
	ContractID string   `json:"contractId"`
	TxHash     string   `json:"txHash"`
	Topics     []string `json:"topic"`
	Value      string   `json:"value"`
}

// EventsPage is one page of the getEvents result.
type EventsPage struct {
	LatestLedger uint32          `json:"latestLedger"`
	Cursor       string          `json:"cursor"`
	Events       []ContractEvent `json:"events"`
}

type eventFilter struct {
	Type        string     `json:"type"`
	ContractIDs []string   `json:"contractIds"`
	Topics      [][]string `json:"topics,omitempty"`
}

type pagination struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

type getEventsParams struct {
	StartLedger uint32        `json:"startLedger,omitempty"`
	Filters     []eventFilter `json:"filters"`
	Pagination  pagination    `json:"pagination"`
}

// GetLatestLedger returns the sequence number of the most recent ledger.
func (c *Client) GetLatestLedger(ctx context.Context) (uint32, error) {
	var result struct {
		Sequence uint32 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// GetEvents fetches contract events for contractID. startLedger is used on
// the first page; subsequent pages resume from cursor.
func (c *Client) GetEvents(ctx context.Context, contractID string, startLedger uint32, cursor string, pageSize int) (*EventsPage, error) {
	params := getEventsParams{
		Filters: []eventFilter{{
			Type:        "contract",
			ContractIDs: []string{contractID},
		}},
		Pagination: pagination{Limit: pageSize, Cursor: cursor},
	}
	if cursor == "" {
		params.StartLedger = startLedger
	}

	var page EventsPage
	if err := c.call(ctx, "getEvents", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendTransaction submits a prepared, fully authorized transaction envelope
// (base64 XDR) and returns its status and hash.
func (c *Client) SendTransaction(ctx context.Context, envelopeB64 string) (status, hash string, err error) {
	params := struct {
		Transaction string `json:"transaction"`
	}{Transaction: envelopeB64}

	var result struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return "", "", err
	}
	return result.Status, result.Hash, nil
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      8675309,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", method, err, types.ErrTransientChain)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %w", method, resp.StatusCode, types.ErrTransientChain)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %v: %w", method, err, types.ErrTransientChain)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s: %w", method, rpcResp.Error.Code, rpcResp.Error.Message, types.ErrTransientChain)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

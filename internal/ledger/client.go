// Package ledger mirrors committed writes to an external append-only ledger.
//
// The ledger is a Celestia-style data-availability node speaking JSON-RPC
// over HTTP: records are submitted as namespaced blobs and acknowledged with
// a transaction reference.
package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// defaultNamespaceID seeds the blob namespace for all feed records.
const defaultNamespaceID = "memefeed"

// Submitter submits one serialized record to the ledger and returns its
// transaction reference.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (string, error)
}

// Client is a minimal JSON-RPC client for the ledger node.
type Client struct {
	nodeURL    string
	authToken  string
	gasPrice   float64
	namespace  string
	httpClient *http.Client

	// nextID is advanced atomically; one Client is shared by all mirror
	// workers.
	nextID atomic.Int64
}

var _ Submitter = (*Client)(nil)

// ClientConfig configures the ledger client.
type ClientConfig struct {
	NodeURL   string
	AuthToken string
	GasPrice  float64
	Timeout   time.Duration
}

// NewClient creates a ledger client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	gasPrice := cfg.GasPrice
	if gasPrice == 0 {
		gasPrice = 0.002
	}
	return &Client{
		nodeURL:    cfg.NodeURL,
		authToken:  cfg.AuthToken,
		gasPrice:   gasPrice,
		namespace:  Namespace(),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Namespace returns the hex namespace shared by all feed blobs: 18 zero
// bytes followed by the namespace id hex-encoded and padded to 10 bytes.
func Namespace() string {
	dataHex := hex.EncodeToString([]byte(defaultNamespaceID))

	const maxLength = 20
	if len(dataHex) < maxLength {
		dataHex += strings.Repeat("0", maxLength-len(dataHex))
	}
	dataHex = dataHex[:maxLength]

	return strings.Repeat("0", 36) + dataHex
}

type blob struct {
	Namespace    string `json:"namespace"`
	Data         string `json:"data"`
	ShareVersion int    `json:"share_version"`
	Commitment   string `json:"commitment"`
	Index        int    `json:"index"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Submit posts the payload as a single blob via blob.Submit and returns the
// ledger's transaction reference.
func (c *Client) Submit(ctx context.Context, payload []byte) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "blob.Submit",
		Params: []interface{}{
			[]blob{{
				Namespace:    c.namespace,
				Data:         hex.EncodeToString(payload),
				ShareVersion: 0,
				Commitment:   strings.Repeat("0", 64),
				Index:        0,
			}},
			c.gasPrice,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit blob: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ledger node returned status %d", resp.StatusCode)
	}

	if rpcErr := gjson.GetBytes(respBody, "error.message"); rpcErr.Exists() {
		return "", fmt.Errorf("ledger rpc error: %s", rpcErr.String())
	}

	// Nodes differ in the shape of the acknowledgement: a tx hash, an
	// inclusion height, or a bare result.
	if tx := gjson.GetBytes(respBody, "result.txhash"); tx.Exists() {
		return tx.String(), nil
	}
	if height := gjson.GetBytes(respBody, "result.height"); height.Exists() {
		return height.String(), nil
	}
	if result := gjson.GetBytes(respBody, "result"); result.Exists() {
		return result.String(), nil
	}
	return "", fmt.Errorf("ledger response carried no transaction reference")
}

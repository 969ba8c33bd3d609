package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// HTTPClient is a Peer backed by a remote consensus node's wire API. The
// wire contract (JSON request/response bodies over a few fixed paths) is a
// pragmatic choice of this wallet's own making: spec.md places the
// peer/consensus protocol itself out of scope, so there is no externally
// mandated shape to match — only the Peer interface's semantics to satisfy.
type HTTPClient struct {
	uri    string
	client *http.Client
}

// NewHTTPClient constructs an HTTPClient against a peer reachable at uri
// (e.g. "https://node1.example:8443"). A nil httpClient gets a default with
// a bounded per-request timeout, consistent with the Submitter and Syncer
// never blocking on a peer indefinitely.
func NewHTTPClient(uri string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{uri: uri, client: httpClient}
}

func (c *HTTPClient) URI() string { return c.uri }

type tipResponse struct {
	BlockIndex uint64 `json:"block_index"`
}

// TipOfNetwork implements Peer.
func (c *HTTPClient) TipOfNetwork(ctx context.Context) (uint64, error) {
	var resp tipResponse
	if err := c.getJSON(ctx, "/v1/tip", &resp); err != nil {
		return 0, err
	}
	return resp.BlockIndex, nil
}

type wireOutput struct {
	GlobalIndex   uint64 `json:"global_index"`
	PublicKey     string `json:"public_key"`
	TargetKey     string `json:"target_key"`
	Commitment    string `json:"commitment"`
	MaskedValue   uint64 `json:"masked_value"`
	MaskedTokenID uint64 `json:"masked_token_id"`
	EncryptedHint string `json:"encrypted_hint"`
	OutputIndex   uint64 `json:"output_index"`
}

type wireBlock struct {
	Index          uint64   `json:"index"`
	ID             string   `json:"id"`
	ParentID       string   `json:"parent_id"`
	ContentsHash   string   `json:"contents_hash"`
	Outputs        []wireOutput `json:"outputs"`
	KeyImagesSpent []string `json:"key_images_spent"`
}

func (b wireBlock) toBlock() (Block, error) {
	out := Block{Index: b.Index}
	if err := decodeFixed32(b.ID, &out.ID); err != nil {
		return Block{}, fmt.Errorf("peer: decode block id: %w", err)
	}
	if err := decodeFixed32(b.ParentID, &out.ParentID); err != nil {
		return Block{}, fmt.Errorf("peer: decode parent id: %w", err)
	}
	if err := decodeFixed32(b.ContentsHash, &out.ContentsHash); err != nil {
		return Block{}, fmt.Errorf("peer: decode contents hash: %w", err)
	}
	out.Outputs = make([]Output, len(b.Outputs))
	for i, o := range b.Outputs {
		var pub, target, commitment [32]byte
		if err := decodeFixed32(o.PublicKey, &pub); err != nil {
			return Block{}, fmt.Errorf("peer: decode output public key: %w", err)
		}
		if err := decodeFixed32(o.TargetKey, &target); err != nil {
			return Block{}, fmt.Errorf("peer: decode output target key: %w", err)
		}
		if err := decodeFixed32(o.Commitment, &commitment); err != nil {
			return Block{}, fmt.Errorf("peer: decode output commitment: %w", err)
		}
		hint, err := helpers.HexToBytes(o.EncryptedHint)
		if err != nil {
			return Block{}, fmt.Errorf("peer: decode output encrypted hint: %w", err)
		}
		out.Outputs[i] = Output{
			GlobalIndex:   o.GlobalIndex,
			PublicKey:     cryptoiface.PublicKey(pub),
			TargetKey:     cryptoiface.PublicKey(target),
			Commitment:    commitment,
			MaskedValue:   o.MaskedValue,
			MaskedTokenID: o.MaskedTokenID,
			EncryptedHint: hint,
			OutputIndex:   o.OutputIndex,
		}
	}
	out.KeyImagesSpent = make([]cryptoiface.KeyImage, len(b.KeyImagesSpent))
	for i, k := range b.KeyImagesSpent {
		var img [32]byte
		if err := decodeFixed32(k, &img); err != nil {
			return Block{}, fmt.Errorf("peer: decode key image: %w", err)
		}
		out.KeyImagesSpent[i] = cryptoiface.KeyImage(img)
	}
	return out, nil
}

func decodeFixed32(hexStr string, out *[32]byte) error {
	b, err := helpers.FixedHexToBytes(hexStr, 32)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

// FetchBlocks implements Peer.
func (c *HTTPClient) FetchBlocks(ctx context.Context, from, to uint64) ([]Block, error) {
	var resp struct {
		Blocks []wireBlock `json:"blocks"`
	}
	path := fmt.Sprintf("/v1/blocks?from=%d&to=%d", from, to)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]Block, len(resp.Blocks))
	for i, wb := range resp.Blocks {
		b, err := wb.toBlock()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

type submitRequest struct {
	RawTx string `json:"raw_tx"`
}

type submitResponse struct {
	Accepted         bool   `json:"accepted"`
	RejectionCode    string `json:"rejection_code"`
	RejectionMessage string `json:"rejection_message"`
	NetworkTip       uint64 `json:"network_tip"`
}

// Submit implements Peer.
func (c *HTTPClient) Submit(ctx context.Context, rawTx []byte) (SubmitResult, error) {
	var resp submitResponse
	req := submitRequest{RawTx: helpers.BytesToHex(rawTx)}
	if err := c.postJSON(ctx, "/v1/submit", req, &resp); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		Accepted:         resp.Accepted,
		RejectionCode:    resp.RejectionCode,
		RejectionMessage: resp.RejectionMessage,
		NetworkTip:       resp.NetworkTip,
	}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri+path, nil)
	if err != nil {
		return fmt.Errorf("peer: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("peer: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("peer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: peer returned status %d", ErrUnreachable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("peer: request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("peer: decode response: %w", err)
	}
	return nil
}

var _ Peer = (*HTTPClient)(nil)

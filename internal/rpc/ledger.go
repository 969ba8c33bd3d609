package rpc

import (
	"context"
	"encoding/json"

	"github.com/ledgervault/walletd/pkg/helpers"
)

// BlockJSON is the wire shape of a Mirror block.
type BlockJSON struct {
	Index          U64    `json:"index"`
	ID             string `json:"id"`
	ParentID       string `json:"parent_id"`
	OutputCount    int    `json:"output_count"`
	KeyImageCount  int    `json:"key_image_count"`
}

type blockIndexParams struct {
	BlockIndex U64 `json:"block_index"`
}

func (s *Server) getBlock(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p blockIndexParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_block params: %w", err)
	}
	b, err := s.mirror.BlockAt(uint64(p.BlockIndex))
	if err != nil {
		return nil, err
	}
	return struct {
		Block BlockJSON `json:"block"`
	}{BlockJSON{
		Index:         U64(b.Index),
		ID:            helpers.BytesToHex(b.ID[:]),
		ParentID:      helpers.BytesToHex(b.ParentID[:]),
		OutputCount:   len(b.Outputs),
		KeyImageCount: len(b.KeyImagesSpent),
	}}, nil
}

// getNetworkStatus implements get_network_status: reports the Mirror's
// local tip alongside the highest tip any configured peer reports, so a
// caller can tell how far local sync lags the network.
func (s *Server) getNetworkStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	localTip, hasLocalTip, err := s.mirror.Tip()
	if err != nil {
		return nil, err
	}

	var networkTip uint64
	var haveNetworkTip bool
	for _, p := range s.peers {
		tip, err := p.TipOfNetwork(ctx)
		if err != nil {
			continue
		}
		if !haveNetworkTip || tip > networkTip {
			networkTip = tip
			haveNetworkTip = true
		}
	}

	result := struct {
		LocalBlockIndex   *U64 `json:"local_block_index,omitempty"`
		NetworkBlockIndex *U64 `json:"network_block_index,omitempty"`
	}{}
	if hasLocalTip {
		result.LocalBlockIndex = u64Ptr(localTip)
	}
	if haveNetworkTip {
		result.NetworkBlockIndex = u64Ptr(networkTip)
	}
	return result, nil
}

// getWalletStatus implements get_wallet_status: aggregates every
// account's balance_per_token into a single wallet-wide view.
func (s *Server) getWalletStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, err
	}

	totalPerToken := make(map[string]BalanceJSON)
	accountStatuses := make([]AccountStatusResult, len(accounts))
	for i, a := range accounts {
		balance, err := s.computeBalance(a.AccountID)
		if err != nil {
			return nil, err
		}
		accountStatuses[i] = AccountStatusResult{Account: accountToJSON(a), BalancePerToken: balance}
		for token, b := range balance {
			t := totalPerToken[token]
			t.Unspent += b.Unspent
			t.Pending += b.Pending
			t.Spent += b.Spent
			t.Orphaned += b.Orphaned
			t.Secreted += b.Secreted
			t.Unverified += b.Unverified
			totalPerToken[token] = t
		}
	}

	var wsClients int
	if s.wsHub != nil {
		wsClients = s.wsHub.ClientCount()
	}

	return struct {
		AccountCount          int                    `json:"account_count"`
		TotalBalancePerToken  map[string]BalanceJSON `json:"total_balance_per_token"`
		WebsocketClientCount  int                    `json:"websocket_client_count"`
	}{
		AccountCount:         len(accounts),
		TotalBalancePerToken: totalPerToken,
		WebsocketClientCount: wsClients,
	}, nil
}

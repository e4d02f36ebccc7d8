// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auctionsdk is a thin HTTP/WebSocket client for an auctiond
// instance. It covers every cmd/auctiond route except the seller and buyer
// allocation-calculation routes, plus ListOpenTimeslots and
// GetTimeslotSummary from cmd/auction-api's /api/v1 routes. Those two are
// requested against the same baseURL as the auctiond routes.
package auctionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voltgrid/auction-core/pkg/clearing"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/delivery"
	"github.com/voltgrid/auction-core/pkg/engine"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/market"
)

// Client talks to an auctiond HTTP API and its WebSocket timeslot feed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	wsConn     *websocket.Conn
}

// NewClient creates a client pointed at baseURL (the auctiond HTTP API).
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Initialize sets the auction's global configuration.
func (c *Client) Initialize(ctx context.Context, authority, quoteAsset string, feeBps uint32, version uint64) error {
	req := struct {
		Authority  string `json:"authority"`
		QuoteAsset string `json:"quote_asset"`
		FeeBps     uint32 `json:"fee_bps"`
		Version    uint64 `json:"version"`
	}{authority, quoteAsset, feeBps, version}
	return c.do(ctx, "POST", "/config/initialize", req, nil)
}

// ApplyProposal applies a governance proposal.
func (c *Client) ApplyProposal(ctx context.Context, caller string, p config.Proposal) error {
	req := struct {
		Caller   string `json:"caller"`
		Kind     int    `json:"kind"`
		NewValue uint64 `json:"new_value"`
		OracleID string `json:"oracle_id"`
	}{caller, int(p.Kind), p.NewValue, p.OracleID.String()}
	return c.do(ctx, "POST", "/config/proposal", req, nil)
}

// Pause trips the emergency-pause circuit breaker.
func (c *Client) Pause(ctx context.Context, caller, reason string, now int64) error {
	req := struct {
		Caller string `json:"caller"`
		Reason string `json:"reason"`
		Now    int64  `json:"now"`
	}{caller, reason, now}
	return c.do(ctx, "POST", "/config/pause", req, nil)
}

// Resume lifts the emergency pause.
func (c *Client) Resume(ctx context.Context, caller string) error {
	req := struct {
		Caller string `json:"caller"`
	}{caller}
	return c.do(ctx, "POST", "/config/resume", req, nil)
}

// EmergencyWithdraw moves a vault's full balance to another vault, returning
// the amount actually moved. It works whether or not the engine is paused.
func (c *Client) EmergencyWithdraw(ctx context.Context, caller string, src, dst ledger.VaultRef) (uint64, error) {
	req := struct {
		Caller string          `json:"caller"`
		Src    ledger.VaultRef `json:"src"`
		Dst    ledger.VaultRef `json:"dst"`
	}{caller, src, dst}
	var out struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.do(ctx, "POST", "/config/emergency-withdraw", req, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

// OpenTimeslot opens a new auction window.
func (c *Client) OpenTimeslot(ctx context.Context, caller string, epochTS int64, lotSize, priceTick uint64) (*market.Timeslot, error) {
	req := struct {
		Caller    string `json:"caller"`
		EpochTS   int64  `json:"epoch_ts"`
		LotSize   uint64 `json:"lot_size"`
		PriceTick uint64 `json:"price_tick"`
	}{caller, epochTS, lotSize, priceTick}
	var slot market.Timeslot
	if err := c.do(ctx, "POST", "/timeslots", req, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// CommitSupply registers a seller's energy offer for a timeslot.
func (c *Client) CommitSupply(ctx context.Context, seller string, epochTS int64, reservePrice, quantity uint64) error {
	req := struct {
		Seller       string `json:"seller"`
		ReservePrice uint64 `json:"reserve_price"`
		Quantity     uint64 `json:"quantity"`
	}{seller, reservePrice, quantity}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/supply", epochTS), req, nil)
}

// PlaceBid places a buyer's bid into a timeslot's bid book.
func (c *Client) PlaceBid(ctx context.Context, buyer string, epochTS int64, price, quantity uint64, placedAt int64) error {
	req := struct {
		Buyer    string `json:"buyer"`
		Price    uint64 `json:"price"`
		Quantity uint64 `json:"quantity"`
		PlacedAt int64  `json:"placed_at"`
	}{buyer, price, quantity, placedAt}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/bids", epochTS), req, nil)
}

// SealTimeslot closes the bid book and supply set to further entries.
func (c *Client) SealTimeslot(ctx context.Context, caller string, epochTS int64) error {
	req := struct {
		Caller string `json:"caller"`
	}{caller}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/seal", epochTS), req, nil)
}

// ProcessSupplyBatch feeds committed sellers into the clearing engine.
func (c *Client) ProcessSupplyBatch(ctx context.Context, epochTS int64, sellers []string) error {
	req := struct {
		Sellers []string `json:"sellers"`
	}{sellers}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/process-supply", epochTS), req, nil)
}

// ProcessBidBatch feeds bid pages into the clearing engine.
func (c *Client) ProcessBidBatch(ctx context.Context, epochTS int64, pageIndexes []uint32) error {
	req := struct {
		PageIndexes []uint32 `json:"page_indexes"`
	}{pageIndexes}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/process-bids", epochTS), req, nil)
}

// ExecuteAuctionClearing runs the double-auction clearing algorithm.
func (c *Client) ExecuteAuctionClearing(ctx context.Context, epochTS int64) error {
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/clear", epochTS), nil, nil)
}

// VerifyAuctionClearing replays the clearing result for an independent
// integrity check.
func (c *Client) VerifyAuctionClearing(ctx context.Context, epochTS int64) error {
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/verify", epochTS), nil, nil)
}

// SettleTimeslot commits the clearing outcome to the timeslot's state.
func (c *Client) SettleTimeslot(ctx context.Context, caller string, epochTS int64, clearingPrice, clearedQty uint64) error {
	req := struct {
		Caller        string `json:"caller"`
		ClearingPrice uint64 `json:"clearing_price"`
		ClearedQty    uint64 `json:"cleared_quantity"`
	}{caller, clearingPrice, clearedQty}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/settle", epochTS), req, nil)
}

// WithdrawProceeds pays a cleared seller's net proceeds out of escrow.
func (c *Client) WithdrawProceeds(ctx context.Context, epochTS int64, seller string) error {
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/sellers/%s/withdraw", epochTS, seller), nil, nil)
}

// RedeemEnergyAndRefund credits a cleared buyer's energy and refunds the
// unspent portion of their bid.
func (c *Client) RedeemEnergyAndRefund(ctx context.Context, epochTS int64, buyer string) error {
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/buyers/%s/redeem", epochTS, buyer), nil, nil)
}

// CancelAuction aborts a timeslot, including a Settled one from which no
// seller has withdrawn and no buyer has redeemed.
func (c *Client) CancelAuction(ctx context.Context, caller string, epochTS int64) error {
	req := struct {
		Caller string `json:"caller"`
	}{caller}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/cancel", epochTS), req, nil)
}

// RefundCancelledBuyers refunds the buyers on the given bid pages of a
// cancelled timeslot, a bounded batch mirroring ProcessBidBatch.
func (c *Client) RefundCancelledBuyers(ctx context.Context, epochTS int64, pageIndexes []uint32) error {
	req := struct {
		PageIndexes []uint32 `json:"page_indexes"`
	}{pageIndexes}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/refund-buyers", epochTS), req, nil)
}

// RefundCancelledSellers refunds the given sellers of a cancelled timeslot,
// a bounded batch mirroring ProcessSupplyBatch.
func (c *Client) RefundCancelledSellers(ctx context.Context, epochTS int64, sellers []string) error {
	req := struct {
		Sellers []string `json:"sellers"`
	}{sellers}
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/refund-sellers", epochTS), req, nil)
}

// SubmitDeliveryReport submits a signed oracle report of delivered quantity.
func (c *Client) SubmitDeliveryReport(ctx context.Context, epochTS int64, report delivery.DeliveryReport) (*delivery.SlashingState, error) {
	req := struct {
		Supplier          string `json:"supplier"`
		AllocatedQuantity uint64 `json:"allocated_quantity"`
		DeliveredQuantity uint64 `json:"delivered_quantity"`
		EvidenceHash      []byte `json:"evidence_hash"`
		Timestamp         int64  `json:"timestamp"`
		OracleID          string `json:"oracle_id"`
		OraclePublicKey   []byte `json:"oracle_public_key"`
		OracleSignature   []byte `json:"oracle_signature"`
	}{report.Supplier.String(), report.AllocatedQuantity, report.DeliveredQuantity, report.EvidenceHash,
		report.Timestamp, report.OracleID.String(), report.OraclePublicKey, report.OracleSignature}
	var state delivery.SlashingState
	if err := c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/delivery-reports", epochTS), req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ExecuteSlashing executes a confirmed shortfall penalty against a seller.
func (c *Client) ExecuteSlashing(ctx context.Context, epochTS int64, seller string) error {
	return c.do(ctx, "POST", fmt.Sprintf("/timeslots/%d/sellers/%s/slash", epochTS, seller), nil, nil)
}

// ValidateSystemHealth asks the daemon to re-check every conservation
// invariant for a timeslot.
func (c *Client) ValidateSystemHealth(ctx context.Context, epochTS int64) error {
	return c.do(ctx, "GET", fmt.Sprintf("/timeslots/%d/health", epochTS), nil, nil)
}

// ListOpenTimeslots lists every timeslot the engine currently holds state
// for, via the read-only D.5 query surface.
func (c *Client) ListOpenTimeslots(ctx context.Context) ([]int64, error) {
	var out struct {
		Timeslots []int64 `json:"timeslots"`
	}
	if err := c.do(ctx, "GET", "/api/v1/timeslots", nil, &out); err != nil {
		return nil, err
	}
	return out.Timeslots, nil
}

// GetTimeslotSummary fetches a timeslot's current state and progress.
func (c *Client) GetTimeslotSummary(ctx context.Context, epochTS int64) (*engine.TimeslotSummary, error) {
	var summary engine.TimeslotSummary
	if err := c.do(ctx, "GET", fmt.Sprintf("/api/v1/timeslots/%d", epochTS), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ConnectWebSocket opens a connection to auctiond's real-time clearing feed
// for a single timeslot.
func (c *Client) ConnectWebSocket(ctx context.Context, wsBaseURL string, epochTS int64) error {
	url := fmt.Sprintf("%s/ws/timeslots/%d", wsBaseURL, epochTS)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}
	c.wsConn = conn
	return nil
}

// ReadAuctionState blocks until the feed pushes the next AuctionState for
// the subscribed timeslot.
func (c *Client) ReadAuctionState() (*clearing.AuctionState, error) {
	if c.wsConn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}
	var state clearing.AuctionState
	if err := c.wsConn.ReadJSON(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Close closes the WebSocket connection, if one is open.
func (c *Client) Close() error {
	if c.wsConn != nil {
		return c.wsConn.Close()
	}
	return nil
}

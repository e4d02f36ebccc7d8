// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltgrid/auction-core/pkg/clearing"
	"github.com/voltgrid/auction-core/pkg/config"
	"github.com/voltgrid/auction-core/pkg/delivery"
	"github.com/voltgrid/auction-core/pkg/engine"
	"github.com/voltgrid/auction-core/pkg/ids"
	"github.com/voltgrid/auction-core/pkg/ledger"
	"github.com/voltgrid/auction-core/pkg/log"
	"github.com/voltgrid/auction-core/pkg/metric"
	"github.com/voltgrid/auction-core/pkg/store"
)

var (
	dataDir   = flag.String("data-dir", "/tmp/auctiond", "Data directory")
	dbType    = flag.String("db-type", "badger", "Database backend: memory or badger")
	port      = flag.Int("port", 8000, "HTTP API port")
	wsPort    = flag.Int("ws-port", 8001, "WebSocket feed port")
	logLevel  = flag.String("log-level", "info", "Log level")

	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Daemon is the long-running process wrapping a single Engine and exposing
// its operation methods as HTTP handlers, plus a WebSocket feed of
// AuctionState transitions. There are no routes for appealing or resolving
// a slashing appeal, since Engine has no methods for them.
type Daemon struct {
	mu sync.RWMutex

	engine  *engine.Engine
	metrics *metric.Metrics
	store   *store.Store
	log     log.Logger

	httpServer *http.Server
	wsServer   *http.Server
	upgrader   websocket.Upgrader
	subs       map[int64]map[*websocket.Conn]bool
}

func main() {
	flag.Parse()

	fmt.Printf("auctiond %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	d, err := NewDaemon(logger)
	if err != nil {
		fmt.Printf("failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		fmt.Printf("failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.Shutdown(ctx); err != nil {
		fmt.Printf("error during shutdown: %v\n", err)
	}
	fmt.Println("auctiond stopped")
}

// NewDaemon wires a Store, Ledger, config.Manager, and Engine together.
func NewDaemon(logger log.Logger) (*Daemon, error) {
	st, err := store.New(*dbType, *dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m, err := metric.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	cfg := config.NewManager(logger)
	l := ledger.New(logger)
	e := engine.New(logger, m, st, cfg, l)

	return &Daemon{
		engine:   e,
		metrics:  m,
		store:    st,
		log:      logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:     make(map[int64]map[*websocket.Conn]bool),
	}, nil
}

// Start begins serving the HTTP API and the WebSocket feed.
func (d *Daemon) Start() error {
	d.log.Info("starting auctiond")

	d.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: d.routes(),
	}
	go func() {
		d.log.Info("HTTP API listening")
		if err := d.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			d.log.Error("HTTP server error", "error", err)
		}
	}()

	d.wsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *wsPort),
		Handler: d.wsRoutes(),
	}
	go func() {
		d.log.Info("WebSocket feed listening")
		if err := d.wsServer.ListenAndServe(); err != http.ErrServerClosed {
			d.log.Error("WebSocket server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops both servers and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.log.Info("shutting down auctiond")
	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.log.Error("HTTP server shutdown error", "error", err)
	}
	if err := d.wsServer.Shutdown(ctx); err != nil {
		d.log.Error("WebSocket server shutdown error", "error", err)
	}
	return d.store.Close()
}

func (d *Daemon) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", d.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(d.metrics.GetGatherer(), promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/config/initialize", d.handleInitialize).Methods("POST")
	r.HandleFunc("/config/proposal", d.handleApplyProposal).Methods("POST")
	r.HandleFunc("/config/pause", d.handlePause).Methods("POST")
	r.HandleFunc("/config/resume", d.handleResume).Methods("POST")
	r.HandleFunc("/config/emergency-withdraw", d.handleEmergencyWithdraw).Methods("POST")

	r.HandleFunc("/timeslots", d.handleOpenTimeslot).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/supply", d.handleCommitSupply).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/bids", d.handlePlaceBid).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/seal", d.handleSealTimeslot).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/process-supply", d.handleProcessSupplyBatch).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/process-bids", d.handleProcessBidBatch).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/clear", d.handleExecuteClearing).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/verify", d.handleVerifyClearing).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/settle", d.handleSettleTimeslot).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/seller-allocations", d.handleCalculateSellerAllocations).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/buyer-allocations", d.handleCalculateBuyerAllocations).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/sellers/{seller}/withdraw", d.handleWithdrawProceeds).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/buyers/{buyer}/redeem", d.handleRedeemEnergyAndRefund).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/cancel", d.handleCancelAuction).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/refund-buyers", d.handleRefundCancelledBuyers).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/refund-sellers", d.handleRefundCancelledSellers).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/delivery-reports", d.handleSubmitDeliveryReport).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/sellers/{seller}/slash", d.handleExecuteSlashing).Methods("POST")
	r.HandleFunc("/timeslots/{epoch}/health", d.handleValidateSystemHealth).Methods("GET")

	return r
}

func (d *Daemon) wsRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/timeslots/{epoch}", d.handleTimeslotFeed)
	return r
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleTimeslotFeed upgrades the connection and registers it to receive
// AuctionState broadcasts for the named timeslot until the client
// disconnects.
func (d *Daemon) handleTimeslotFeed(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	d.mu.Lock()
	if d.subs[epoch] == nil {
		d.subs[epoch] = make(map[*websocket.Conn]bool)
	}
	d.subs[epoch][conn] = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.subs[epoch], conn)
		d.mu.Unlock()
	}()

	// Block on reads purely to detect client disconnects; this feed is
	// write-only from the server's side.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcastState pushes an AuctionState to every subscriber of epoch.
func (d *Daemon) broadcastState(epoch int64, state *clearing.AuctionState) {
	d.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(d.subs[epoch]))
	for c := range d.subs[epoch] {
		conns = append(conns, c)
	}
	d.mu.RUnlock()

	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseEpoch(s string) (int64, error) {
	var epoch int64
	_, err := fmt.Sscanf(s, "%d", &epoch)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch: %w", err)
	}
	return epoch, nil
}

func parseID(s string) (ids.ID, error) {
	return ids.FromString(s)
}

// --- Config handlers ---

func (d *Daemon) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Authority  string `json:"authority"`
		QuoteAsset string `json:"quote_asset"`
		FeeBps     uint32 `json:"fee_bps"`
		Version    uint64 `json:"version"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	authority, err := parseID(req.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quoteAsset, err := parseID(req.QuoteAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.Initialize(authority, quoteAsset, req.FeeBps, req.Version); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}

func (d *Daemon) handleApplyProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string `json:"caller"`
		Kind     int    `json:"kind"`
		NewValue uint64 `json:"new_value"`
		OracleID string `json:"oracle_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var oracleID ids.ID
	if req.OracleID != "" {
		oracleID, err = parseID(req.OracleID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	proposal := config.Proposal{Kind: config.ProposalKind(req.Kind), NewValue: req.NewValue, OracleID: oracleID}
	if err := d.engine.ApplyProposal(caller, proposal); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (d *Daemon) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Reason string `json:"reason"`
		Now    int64  `json:"now"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.Pause(caller, req.Reason, req.Now); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (d *Daemon) handleResume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.Resume(caller); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (d *Daemon) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string         `json:"caller"`
		Src    ledger.VaultRef `json:"src"`
		Dst    ledger.VaultRef `json:"dst"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := d.engine.EmergencyWithdraw(caller, req.Src, req.Dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// --- Timeslot lifecycle handlers ---

func (d *Daemon) handleOpenTimeslot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller    string `json:"caller"`
		EpochTS   int64  `json:"epoch_ts"`
		LotSize   uint64 `json:"lot_size"`
		PriceTick uint64 `json:"price_tick"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, err := d.engine.OpenTimeslot(caller, req.EpochTS, req.LotSize, req.PriceTick)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (d *Daemon) handleCommitSupply(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Seller       string `json:"seller"`
		ReservePrice uint64 `json:"reserve_price"`
		Quantity     uint64 `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller, err := parseID(req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.CommitSupply(seller, epoch, req.ReservePrice, req.Quantity); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (d *Daemon) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Buyer    string `json:"buyer"`
		Price    uint64 `json:"price"`
		Quantity uint64 `json:"quantity"`
		PlacedAt int64  `json:"placed_at"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := parseID(req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.PlaceBid(buyer, epoch, req.Price, req.Quantity, req.PlacedAt); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "placed"})
}

func (d *Daemon) handleSealTimeslot(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.SealTimeslot(caller, epoch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sealed"})
}

func (d *Daemon) handleProcessSupplyBatch(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Sellers []string `json:"sellers"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sellers := make([]ids.ID, len(req.Sellers))
	for i, s := range req.Sellers {
		id, err := parseID(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sellers[i] = id
	}
	if err := d.engine.ProcessSupplyBatch(epoch, sellers); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (d *Daemon) handleProcessBidBatch(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		PageIndexes []uint32 `json:"page_indexes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.ProcessBidBatch(epoch, req.PageIndexes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (d *Daemon) handleExecuteClearing(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.ExecuteAuctionClearing(epoch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if state, ok := d.engine.AuctionState(epoch); ok {
		d.broadcastState(epoch, state)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (d *Daemon) handleVerifyClearing(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.VerifyAuctionClearing(epoch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (d *Daemon) handleSettleTimeslot(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller        string `json:"caller"`
		ClearingPrice uint64 `json:"clearing_price"`
		ClearedQty    uint64 `json:"cleared_quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.SettleTimeslot(caller, epoch, req.ClearingPrice, req.ClearedQty); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if state, ok := d.engine.AuctionState(epoch); ok {
		d.broadcastState(epoch, state)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (d *Daemon) handleCalculateSellerAllocations(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	allocs, err := d.engine.CalculateSellerAllocations(epoch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

func (d *Daemon) handleCalculateBuyerAllocations(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	allocs, err := d.engine.CalculateBuyerAllocations(epoch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

func (d *Daemon) handleWithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	epoch, err := parseEpoch(vars["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller, err := parseID(vars["seller"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.WithdrawProceeds(epoch, seller); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (d *Daemon) handleRedeemEnergyAndRefund(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	epoch, err := parseEpoch(vars["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := parseID(vars["buyer"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.RedeemEnergyAndRefund(epoch, buyer); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "redeemed"})
}

func (d *Daemon) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseID(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.CancelAuction(caller, epoch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (d *Daemon) handleRefundCancelledBuyers(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		PageIndexes []uint32 `json:"page_indexes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.RefundCancelledBuyers(epoch, req.PageIndexes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (d *Daemon) handleRefundCancelledSellers(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Sellers []string `json:"sellers"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sellers := make([]ids.ID, len(req.Sellers))
	for i, s := range req.Sellers {
		id, err := parseID(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sellers[i] = id
	}
	if err := d.engine.RefundCancelledSellers(epoch, sellers); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (d *Daemon) handleSubmitDeliveryReport(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Supplier          string `json:"supplier"`
		AllocatedQuantity uint64 `json:"allocated_quantity"`
		DeliveredQuantity uint64 `json:"delivered_quantity"`
		EvidenceHash      []byte `json:"evidence_hash"`
		Timestamp         int64  `json:"timestamp"`
		OracleID          string `json:"oracle_id"`
		OraclePublicKey   []byte `json:"oracle_public_key"`
		OracleSignature   []byte `json:"oracle_signature"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	supplier, err := parseID(req.Supplier)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	oracleID, err := parseID(req.OracleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report := delivery.DeliveryReport{
		Supplier:          supplier,
		AllocatedQuantity: req.AllocatedQuantity,
		DeliveredQuantity: req.DeliveredQuantity,
		EvidenceHash:      req.EvidenceHash,
		Timestamp:         req.Timestamp,
		OracleID:          oracleID,
		OraclePublicKey:   req.OraclePublicKey,
		OracleSignature:   req.OracleSignature,
	}
	state, err := d.engine.SubmitDeliveryReport(epoch, report)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (d *Daemon) handleExecuteSlashing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	epoch, err := parseEpoch(vars["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller, err := parseID(vars["seller"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.ExecuteSlashing(epoch, seller); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "slashed"})
}

func (d *Daemon) handleValidateSystemHealth(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseEpoch(mux.Vars(r)["epoch"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.ValidateSystemHealth(epoch); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

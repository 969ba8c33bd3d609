// Package rpc provides the wallet service's JSON-RPC 2.0 surface: one
// Handler per spec.md §6 method, a websocket push channel for the
// transaction-log and TXO events those handlers cause, and the Prometheus
// and health endpoints the rest of the service exposes passively.
package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ledgervault/walletd/internal/coordinator"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/submit"
	"github.com/ledgervault/walletd/internal/txbuilder"
	"github.com/ledgervault/walletd/pkg/logging"
)

// Server is a JSON-RPC 2.0 server fronting a Store, Ledger Mirror,
// Coordinator, and Transaction Builder.
type Server struct {
	store       *store.Store
	mirror      *ledgermirror.Mirror
	coordinator *coordinator.Coordinator
	builder     *txbuilder.Builder
	submitter   *submit.Submitter
	peers       []peer.Peer
	metrics     *metrics.Registry
	log         *logging.Logger
	wsHub       *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Config configures a Server.
type Config struct {
	Store       *store.Store
	Mirror      *ledgermirror.Mirror
	Coordinator *coordinator.Coordinator
	Builder     *txbuilder.Builder
	Submitter   *submit.Submitter
	Peers       []peer.Peer
	Metrics     *metrics.Registry // nil disables the /metrics endpoint
	Logger      *logging.Logger
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer constructs a Server and registers every method handler.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	s := &Server{
		store:       cfg.Store,
		mirror:      cfg.Mirror,
		coordinator: cfg.Coordinator,
		builder:     cfg.Builder,
		submitter:   cfg.Submitter,
		peers:       cfg.Peers,
		metrics:     cfg.Metrics,
		log:         logger.Component("rpc"),
		handlers:    make(map[string]Handler),
	}
	s.registerHandlers()
	return s
}

// registerHandlers wires every spec.md §6 method to its implementation.
func (s *Server) registerHandlers() {
	// Accounts
	s.handlers["create_account"] = s.createAccount
	s.handlers["import_account"] = s.importAccount
	s.handlers["import_account_from_legacy_root_entropy"] = s.importAccountFromLegacyEntropy
	s.handlers["get_account_status"] = s.getAccountStatus
	s.handlers["get_accounts"] = s.getAccounts
	s.handlers["update_account_name"] = s.updateAccountName
	s.handlers["remove_account"] = s.removeAccount
	s.handlers["set_require_spend_subaddress"] = s.setRequireSpendSubaddress
	s.handlers["export_account_secrets"] = s.exportAccountSecrets

	// Subaddresses
	s.handlers["assign_address_for_account"] = s.assignAddressForAccount
	s.handlers["get_addresses_for_account"] = s.getAddressesForAccount
	s.handlers["verify_address"] = s.verifyAddress
	s.handlers["get_address_status"] = s.getAddressStatus

	// TXOs
	s.handlers["get_txo"] = s.getTxo
	s.handlers["get_txos"] = s.getTxos
	s.handlers["get_txo_block_index"] = s.getTxoBlockIndex
	s.handlers["get_mc_protocol_txo"] = s.getMcProtocolTxo
	s.handlers["sample_mixins"] = s.sampleMixins
	s.handlers["get_txo_membership_proofs"] = s.getTxoMembershipProofs

	// Transactions
	s.handlers["build_transaction"] = s.buildTransaction
	s.handlers["build_unsigned_transaction"] = s.buildUnsignedTransaction
	s.handlers["build_unsigned_burn_transaction"] = s.buildUnsignedBurnTransaction
	s.handlers["submit_transaction"] = s.submitTransaction
	s.handlers["build_and_submit_transaction"] = s.buildAndSubmitTransaction
	s.handlers["get_transaction_log"] = s.getTransactionLog
	s.handlers["get_transaction_logs"] = s.getTransactionLogs
	s.handlers["get_confirmations"] = s.getConfirmations
	s.handlers["validate_confirmation"] = s.validateConfirmation
	s.handlers["check_receiver_receipt_status"] = s.checkReceiverReceiptStatus

	// Ledger
	s.handlers["get_block"] = s.getBlock
	s.handlers["get_network_status"] = s.getNetworkStatus
	s.handlers["get_wallet_status"] = s.getWalletStatus
}

// Start begins serving JSON-RPC, websocket, health, and (if configured)
// metrics traffic on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("rpc server error", "error", err)
		}
	}()

	s.log.Info("rpc server started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// WSHub returns the server's websocket hub, e.g. for a Scanner or
// Coordinator integration to push events into.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleRPC dispatches a single JSON-RPC request.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "invalid request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		mapped := mapHandlerError(err)
		s.writeError(w, req.ID, int(mapped.Code), mapped.Message, nil)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id})
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

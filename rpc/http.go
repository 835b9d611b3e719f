package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"promoledger/core"
	"promoledger/core/receipts"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/promo"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

// Backend is the ledger surface served over RPC.
type Backend interface {
	Submit(ctx context.Context, ix *types.Instruction) (*types.Receipt, error)
	Receipt(ctx context.Context, hash string) (*types.Receipt, error)
	Events(ctx context.Context, eventType string, afterID int64, limit int) ([]receipts.StoredEvent, error)
	SubscribeEvents(ctx context.Context, cursor string) (<-chan core.StreamEvent, func(), []core.StreamEvent, error)
	Account(addr crypto.Address) (*core.AccountView, error)
	Policy() (*promo.Policy, error)
	Campaign(addr crypto.Address) (*promo.Campaign, error)
	Vault(campaign crypto.Address) (*promo.VaultView, error)
	Coupon(addr crypto.Address) (*promo.Coupon, error)
	Treasury() crypto.Address
}

// ServerConfig configures the RPC listener.
type ServerConfig struct {
	JWTSecret         string
	JWTIssuer         string
	RequestsPerMinute float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type Server struct {
	node    Backend
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *authenticator
	limiter *rateLimiter

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(node Backend, logger *slog.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		auth:    newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.middleware).Post("/rpc", s.handle)
	r.With(s.limiter.middleware).Get("/ws/events", s.handleEventsWS)
	return otelhttp.NewHandler(r, "promod.rpc")
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("rpc listening", slog.String("address", listener.Addr().String()))
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// LedgerErrorData names a ledger error in an RPC error's data field.
type LedgerErrorData struct {
	Code   uint32 `json:"code"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeLedgerError reports a failed query. Record lookups that found nothing
// map to codeNotFound; the ledger code and name travel in data.
func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	data := LedgerErrorData{Detail: err.Error()}
	code, name, ok := promo.ErrorCode(err)
	if !ok {
		if errors.Is(err, receipts.ErrNotFound) {
			writeError(w, http.StatusNotFound, id, codeNotFound, "not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", data)
		return
	}
	data.Code, data.Name = code, name
	if errors.Is(err, promo.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, id, codeNotFound, "record not found", data)
		return
	}
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, name, data)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	setMethod(r.Context(), req.Method)

	switch req.Method {
	case "promo_submitInstruction":
		if authErr := s.auth.require(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSubmitInstruction(w, r, req)
	case "promo_getReceipt":
		s.handleGetReceipt(w, r, req)
	case "promo_getEvents":
		s.handleGetEvents(w, r, req)
	case "promo_getBalance":
		s.handleGetBalance(w, r, req)
	case "promo_getPolicy":
		s.handleGetPolicy(w, r, req)
	case "promo_getCampaign":
		s.handleGetCampaign(w, r, req)
	case "promo_getVault":
		s.handleGetVault(w, r, req)
	case "promo_getCoupon":
		s.handleGetCoupon(w, r, req)
	case "promo_deriveAddresses":
		s.handleDeriveAddresses(w, r, req)
	case "promo_getTreasury":
		writeResult(w, req.ID, s.node.Treasury())
	default:
		setMethod(r.Context(), "unknown")
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

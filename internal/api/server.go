// Package api exposes the order intake HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/config"
	"github.com/interstellar-swap/relayer/internal/types"
)

// OrderService interface for order operations
type OrderService interface {
	CreateOrder(ctx context.Context, orderReq *types.OrderRequest) (*types.SwapOrder, error)
	GetOrderByHash(hash string) (*types.SwapOrder, error)
	GetActiveOrders() ([]*types.SwapOrder, error)
	GetOrdersByMaker(maker string) ([]*types.SwapOrder, error)
}

// Server represents the HTTP API server
type Server struct {
	server       *http.Server
	config       config.API
	orderService OrderService
	log          zerolog.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.API, orderService OrderService, log zerolog.Logger) *Server {
	s := &Server{
		config:       cfg,
		orderService: orderService,
		log:          log.With().Str("component", "api").Logger(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	router.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders/{hash}", s.handleOrderDetails).Methods(http.MethodGet)
	router.HandleFunc("/orders/{hash}/status", s.handleOrderStatus).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start runs the server until ctx is cancelled, then shuts it down within
// the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting API server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "interstellar-relayer",
	})
}

// GET /orders, optionally filtered by ?maker=
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []*types.SwapOrder
		err    error
	)
	if maker := r.URL.Query().Get("maker"); maker != "" {
		orders, err = s.orderService.GetOrdersByMaker(maker)
	} else {
		orders, err = s.orderService.GetActiveOrders()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get orders", err)
		return
	}

	s.writeJSON(w, http.StatusOK, &types.ActiveOrdersResponse{
		Orders: orders,
		Count:  len(orders),
	})
}

// POST /orders
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var orderReq types.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	order, err := s.orderService.CreateOrder(r.Context(), &orderReq)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Failed to create order", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, order)
}

// GET /orders/{hash}
func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.GetOrderByHash(mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Order not found", err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

// GET /orders/{hash}/status
func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.GetOrderByHash(mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Order not found", err)
		return
	}
	s.writeJSON(w, http.StatusOK, &types.OrderStatusResponse{
		OrderHash: order.OrderHash,
		Hashlock:  order.Hashlock,
		State:     order.State,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().Unix(),
	}
	if err != nil {
		s.log.Warn().Err(err).Int("status", statusCode).Msg(message)
		response["details"] = err.Error()
	}
	s.writeJSON(w, statusCode, response)
}

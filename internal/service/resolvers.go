package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstellar-swap/relayer/internal/types"
)

// ResolverRegistry tracks the resolver endpoints that compete to fill
// orders. Configured base URLs are probed once at startup; only the ones
// answering the health check receive order notifications. A resolver
// failing a notification is logged and skipped, never fatal.
type ResolverRegistry struct {
	configured []string
	healthy    []string
	http       *http.Client
	log        zerolog.Logger
}

// NewResolverRegistry builds a registry over the configured base URLs.
func NewResolverRegistry(urls []string, log zerolog.Logger) *ResolverRegistry {
	return &ResolverRegistry{
		configured: urls,
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "resolvers").Logger(),
	}
}

// CheckHealth probes every configured resolver and keeps the responsive
// ones.
func (r *ResolverRegistry) CheckHealth(ctx context.Context) {
	r.healthy = r.healthy[:0]
	for _, base := range r.configured {
		if r.probe(ctx, base) {
			r.healthy = append(r.healthy, base)
		}
	}
	r.log.Info().Int("configured", len(r.configured)).Int("healthy", len(r.healthy)).
		Msg("resolver health check complete")
}

// Healthy returns the resolvers that passed the health check.
func (r *ResolverRegistry) Healthy() []string {
	return append([]string(nil), r.healthy...)
}

// Notify sends the accepted order to every healthy resolver.
func (r *ResolverRegistry) Notify(ctx context.Context, order *types.SwapOrder) {
	if len(r.healthy) == 0 {
		return
	}

	body, err := json.Marshal(order)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal order for resolvers")
		return
	}

	for _, base := range r.healthy {
		if err := r.post(ctx, base+"/order", body); err != nil {
			r.log.Warn().Err(err).Str("resolver", base).Str("orderHash", order.OrderHash).
				Msg("resolver notification failed")
			continue
		}
		r.log.Debug().Str("resolver", base).Str("orderHash", order.OrderHash).
			Msg("resolver notified")
	}
}

func (r *ResolverRegistry) probe(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		r.log.Warn().Err(err).Str("resolver", base).Msg("bad resolver URL")
		return false
	}
	resp, err := r.http.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Str("resolver", base).Msg("resolver unreachable")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.log.Warn().Int("status", resp.StatusCode).Str("resolver", base).Msg("resolver unhealthy")
		return false
	}
	return true
}

func (r *ResolverRegistry) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.status, http.StatusText(e.status))
}

// Package fiscal translates canonical sales into the wire protocols of the
// supported fiscal printer vendors and normalizes their responses.
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kioskpos/internal/infra"
	"kioskpos/internal/model"

	"github.com/rs/zerolog/log"
)

// Initialization failures.
var (
	ErrNotInitialized        = errors.New("fiscal: printer not initialized")
	ErrNotActive             = errors.New("fiscal: printer config is not active")
	ErrMissingEndpoint       = errors.New("fiscal: printer IP/port missing")
	ErrProviderMisconfigured = errors.New("fiscal: provider credentials missing")
	ErrUnknownProvider       = errors.New("fiscal: unknown provider")
)

// Service holds exactly one active provider at a time and routes print and
// probe calls through a circuit breaker so a dead printer fast-fails instead
// of stalling every sale. Callers must not re-initialize concurrently with an
// in-flight print.
type Service struct {
	mu       sync.RWMutex
	provider Provider
	cb       *infra.CircuitBreaker
}

// NewService creates an uninitialized fiscal service. PrintSaleReceipt fails
// closed until Initialize succeeds.
func NewService(cb *infra.CircuitBreaker) *Service {
	if cb == nil {
		cb = infra.NewCircuitBreaker(infra.DefaultCBConfig())
	}
	return &Service{cb: cb}
}

// Initialize validates cfg and swaps in the selected provider, replacing any
// previous one wholesale.
func (s *Service) Initialize(cfg Config) error {
	if !cfg.IsActive {
		return ErrNotActive
	}
	if cfg.IP == "" || cfg.Port == 0 {
		return ErrMissingEndpoint
	}
	if cfg.OperatorCode == "" || cfg.OperatorPassword == "" {
		return ErrProviderMisconfigured
	}

	var p Provider
	switch cfg.Provider {
	case ProviderCaspos:
		p = newCasposProvider(cfg)
	case ProviderOmnitech:
		p = newOmnitechProvider(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()

	log.Info().
		Str("provider", p.Name()).
		Str("endpoint", fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)).
		Msg("fiscal: provider initialized")
	return nil
}

// Initialized reports whether a provider is active.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider != nil
}

// PrintSaleReceipt prints a fiscal receipt for the sale. The only returned
// error is ErrNotInitialized; every device or network failure resolves to a
// result with Success=false and a classified error string.
func (s *Service) PrintSaleReceipt(ctx context.Context, sale *model.Sale) (*model.FiscalPrintResult, error) {
	s.mu.RLock()
	p := s.provider
	s.mu.RUnlock()
	if p == nil {
		return nil, ErrNotInitialized
	}

	var result *model.FiscalPrintResult
	cbErr := s.cb.Execute(func() error {
		result = p.PrintSale(ctx, sale)
		if !result.Success && isUnreachableResult(result) {
			// Only connectivity failures feed the breaker — a business
			// rejection means the device is alive.
			return errUnreachable
		}
		return nil
	})
	if errors.Is(cbErr, infra.ErrCircuitOpen) {
		log.Warn().Str("local_id", sale.LocalID).Msg("fiscal: circuit open, skipping device call")
		return &model.FiscalPrintResult{
			Provider: p.Name(),
			Error:    "unreachable: printer circuit open",
		}, nil
	}

	if !result.Success {
		log.Warn().
			Str("provider", result.Provider).
			Str("local_id", sale.LocalID).
			Str("error", result.Error).
			Msg("fiscal: print failed")
	}
	return result, nil
}

// TestConnection probes the active provider without printing.
func (s *Service) TestConnection(ctx context.Context) (*TestResult, error) {
	s.mu.RLock()
	p := s.provider
	s.mu.RUnlock()
	if p == nil {
		return nil, ErrNotInitialized
	}
	return p.TestConnection(ctx), nil
}

func isUnreachableResult(r *model.FiscalPrintResult) bool {
	return len(r.Error) >= 11 && r.Error[:11] == "unreachable"
}

package financing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// ErrNoTreasury indicates no treasury object is configured.
var ErrNoTreasury = errors.New("treasury not configured")

const (
	// SourceConfig marks parameters taken from static configuration.
	SourceConfig = "config"
	// SourceTreasury marks parameters read from the treasury object.
	SourceTreasury = "treasury"
)

// Service prices offers with the current platform parameters.
type Service struct {
	reader         chain.Reader
	treasuryID     string
	static         Params
	maxDiscountBps int64
	logger         *slog.Logger
}

// NewService constructs a financing service. treasuryID may be empty, in
// which case only the static parameters apply.
func NewService(reader chain.Reader, treasuryID string, static Params, maxDiscountBps int64, logger *slog.Logger) (*Service, error) {
	if err := ValidateParams(static); err != nil {
		return nil, fmt.Errorf("fee parameters: %w", err)
	}
	if maxDiscountBps <= 0 || maxDiscountBps > invoice.MaxBps {
		maxDiscountBps = DefaultMaxDiscountBps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reader:         reader,
		treasuryID:     treasuryID,
		static:         static,
		maxDiscountBps: maxDiscountBps,
		logger:         logger,
	}, nil
}

// Treasury reads the treasury object.
func (s *Service) Treasury(ctx context.Context) (invoice.Treasury, error) {
	if s.treasuryID == "" || s.reader == nil {
		return invoice.Treasury{}, ErrNoTreasury
	}
	obj, err := s.reader.GetObject(ctx, s.treasuryID)
	if err != nil {
		return invoice.Treasury{}, err
	}
	return invoice.DecodeTreasury(obj)
}

// Params returns the fee parameters in force and where they came from.
// Treasury values override configuration field by field; any failure to read
// the treasury falls back to configuration.
func (s *Service) Params(ctx context.Context) (Params, string) {
	if s.treasuryID == "" {
		return s.static, SourceConfig
	}
	t, err := s.Treasury(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "treasury unreadable, using configured fees", "treasury_id", s.treasuryID, "error", err)
		return s.static, SourceConfig
	}

	p := s.static
	overridden := false
	if t.OriginationFeeBps > 0 {
		p.OriginationFeeBps = t.OriginationFeeBps
		overridden = true
	}
	if t.TakeRateBps > 0 {
		p.TakeRateBps = t.TakeRateBps
		overridden = true
	}
	if t.SettlementFee > 0 {
		p.SettlementFee = t.SettlementFee
		overridden = true
	}
	if !overridden {
		return s.static, SourceConfig
	}
	return p, SourceTreasury
}

// MaxDiscountBps is the sanity ceiling applied to offers.
func (s *Service) MaxDiscountBps() int64 {
	return s.maxDiscountBps
}

// Quote validates an offer against the parameters in force.
func (s *Service) Quote(ctx context.Context, o Offer) (Quote, Params, error) {
	p, _ := s.Params(ctx)
	q, err := ValidateOffer(o, p, s.maxDiscountBps)
	return q, p, err
}

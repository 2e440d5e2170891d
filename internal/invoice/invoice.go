// Package invoice models invoices and their companion objects and decodes
// them from raw ledger objects.
package invoice

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an invoice. The numeric values match the
// on-ledger encoding.
type Status int

const (
	StatusCreated Status = iota
	StatusReady
	StatusFinanced
	StatusPaid
	StatusDisputed
	StatusDefaulted
)

var statusNames = [...]string{"CREATED", "READY", "FINANCED", "PAID", "DISPUTED", "DEFAULTED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusDefaulted
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusDefaulted
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus accepts a status name in any case or its numeric code.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	for i, name := range statusNames {
		if strings.EqualFold(raw, name) {
			return Status(i), nil
		}
	}
	if len(raw) == 1 && raw[0] >= '0' && raw[0] <= '5' {
		return Status(raw[0] - '0'), nil
	}
	return 0, fmt.Errorf("unknown status %q", raw)
}

var transitions = map[Status][]Status{
	StatusCreated:   {StatusReady, StatusFinanced, StatusDisputed},
	StatusReady:     {StatusFinanced, StatusDisputed},
	StatusFinanced:  {StatusPaid, StatusDefaulted, StatusDisputed},
	StatusDisputed:  {StatusPaid, StatusDefaulted},
	StatusPaid:      {},
	StatusDefaulted: {},
}

// CanTransition checks if a status transition is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// Invoice is a decoded invoice snapshot. Amounts are in micro-units.
type Invoice struct {
	ID             string
	Issuer         string
	Buyer          string
	FaceValue      int64
	DiscountBps    int64
	EscrowBps      int64
	PlatformFeeBps int64
	DueDate        time.Time
	CreatedAt      time.Time
	FinancedAt     time.Time
	PaidAt         time.Time
	Status         Status
	Financier      string
	EscrowID       string
	FundingID      string
	AmountPaid     int64
	AmountReceived int64
	Description    string
	// OriginTx is the creation transaction digest, LastTx the last one that
	// touched the object.
	OriginTx string
	LastTx   string
}

// IsFinanced reports whether an investor has bought the invoice.
func (i Invoice) IsFinanced() bool {
	switch i.Status {
	case StatusFinanced, StatusPaid, StatusDefaulted:
		return true
	case StatusDisputed:
		return !i.FinancedAt.IsZero() || i.Financier != ""
	default:
		return false
	}
}

// IsSettled reports whether the buyer has paid the invoice.
func (i Invoice) IsSettled() bool {
	return i.Status == StatusPaid
}

// Overdue reports whether a financed invoice is past due and unsettled, the
// precondition for DEFAULTED.
func (i Invoice) Overdue(now time.Time) bool {
	return i.Status == StatusFinanced && !i.DueDate.IsZero() && now.After(i.DueDate)
}

// DaysUntilDue returns whole days from now to the due date, negative when past due.
func (i Invoice) DaysUntilDue(now time.Time) int64 {
	return int64(i.DueDate.Sub(now) / (24 * time.Hour))
}

// InvolvesParty reports whether address acts as issuer, buyer or financier.
func (i Invoice) InvolvesParty(address string) bool {
	return SameAddress(i.Issuer, address) || SameAddress(i.Buyer, address) || SameAddress(i.Financier, address)
}

// Validate checks the decoded invariants.
func (i Invoice) Validate() error {
	fields := map[string]string{}
	if i.ID == "" {
		fields["id"] = "missing object id"
	}
	if i.FaceValue < 0 {
		fields["amount"] = "must not be negative"
	}
	for name, bps := range map[string]int64{
		"discount_rate": i.DiscountBps,
		"escrow_bps":    i.EscrowBps,
		"fee_bps":       i.PlatformFeeBps,
	} {
		if bps < 0 || bps > MaxBps {
			fields[name] = fmt.Sprintf("must be within 0..%d bps", MaxBps)
		}
	}
	if !i.DueDate.IsZero() && !i.CreatedAt.IsZero() && !i.DueDate.After(i.CreatedAt) {
		fields["due_date"] = "must be after created_at"
	}
	if !i.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Escrow is buyer-side collateral for one invoice.
type Escrow struct {
	ID             string
	InvoiceID      string
	Buyer          string
	RequiredAmount int64
	Paid           bool
}

// Funding records the investor who financed one invoice.
type Funding struct {
	ID        string
	InvoiceID string
	Funder    string
	Amount    int64
}

// Treasury is the platform fee account and its fee parameters.
type Treasury struct {
	ID                string
	Balance           int64
	FeesCollected     int64
	OriginationFeeBps int64
	TakeRateBps       int64
	SettlementFee     int64
}

package invoice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/invoicefi/reconciler/internal/chain"
)

// Field names changed across contract versions. The first name present wins.
var (
	issuerFields         = []string{"issuer", "supplier", "seller"}
	buyerFields          = []string{"buyer", "debtor"}
	faceValueFields      = []string{"amount", "face_value"}
	discountFields       = []string{"discount_rate", "discount_bps"}
	escrowRateFields     = []string{"escrow_bps", "escrow_rate"}
	platformFeeFields    = []string{"fee_bps", "platform_fee_bps"}
	createdFields        = []string{"created_at", "issue_date"}
	paidAtFields         = []string{"paid_at", "settled_at"}
	financierFields      = []string{"financed_by", "financier", "investor"}
	amountPaidFields     = []string{"amount_paid", "investor_paid"}
	amountReceivedFields = []string{"amount_received", "supplier_received"}
	eventInvoiceFields   = []string{"invoice_id", "id", "object_id"}
)

// millisThreshold separates second and millisecond unix timestamps.
const millisThreshold = 1_000_000_000_000

type record struct {
	res  gjson.Result
	errs *ValidationError
}

func newRecord(raw json.RawMessage) record {
	return record{res: gjson.ParseBytes(raw), errs: &ValidationError{}}
}

// unwrap peels UID, Option, Balance and enum wrappers down to a scalar.
func unwrap(v gjson.Result) gjson.Result {
	for v.IsObject() {
		switch {
		case v.Get("vec").Exists():
			vec := v.Get("vec").Array()
			if len(vec) == 0 {
				return gjson.Result{}
			}
			v = vec[0]
		case v.Get("id").Exists():
			v = v.Get("id")
		case v.Get("value").Exists():
			v = v.Get("value")
		case v.Get("variant").Exists():
			v = v.Get("variant")
		case v.Get("fields").Exists():
			v = v.Get("fields")
		default:
			return v
		}
	}
	return v
}

func (r record) first(names ...string) (gjson.Result, string) {
	for _, name := range names {
		v := unwrap(r.res.Get(name))
		if v.Exists() && v.Type != gjson.Null {
			return v, name
		}
	}
	return gjson.Result{}, ""
}

func (r record) str(names ...string) string {
	v, _ := r.first(names...)
	if v.Type == gjson.String {
		return v.Str
	}
	if v.Exists() {
		return v.Raw
	}
	return ""
}

func (r record) int(names ...string) int64 {
	v, name := r.first(names...)
	switch v.Type {
	case gjson.Number:
		return v.Int()
	case gjson.String:
		if v.Str == "" {
			return 0
		}
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			r.errs.Add(name, "not an integer")
			return 0
		}
		return n
	case gjson.Null:
		return 0
	default:
		r.errs.Add(name, "not an integer")
		return 0
	}
}

func (r record) bool(names ...string) bool {
	v, _ := r.first(names...)
	return v.Bool()
}

func (r record) time(names ...string) time.Time {
	n := r.int(names...)
	if n <= 0 {
		if n < 0 {
			_, name := r.first(names...)
			r.errs.Add(name, "negative timestamp")
		}
		return time.Time{}
	}
	return unixTime(n)
}

func (r record) status() Status {
	v, _ := r.first("status", "state")
	switch v.Type {
	case gjson.Number:
		s := Status(v.Int())
		if !s.Valid() {
			r.errs.Add("status", fmt.Sprintf("unknown status code %d", v.Int()))
		}
		return s
	case gjson.String:
		s, err := ParseStatus(v.Str)
		if err != nil {
			r.errs.Add("status", err.Error())
		}
		return s
	default:
		return StatusCreated
	}
}

func unixTime(n int64) time.Time {
	if n >= millisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func checkType(obj chain.Object, want string) error {
	if obj.Type != "" && chain.TypeName(obj.Type) != want {
		return fmt.Errorf("%w: object %s has type %s, want %s", ErrDecode, obj.ID, obj.Type, want)
	}
	return nil
}

// DecodeInvoice converts a ledger object into an Invoice and enforces its invariants.
func DecodeInvoice(obj chain.Object) (Invoice, error) {
	if err := checkType(obj, "Invoice"); err != nil {
		return Invoice{}, err
	}
	r := newRecord(obj.Fields)

	inv := Invoice{
		ID:             obj.ID,
		Issuer:         r.str(issuerFields...),
		Buyer:          r.str(buyerFields...),
		FaceValue:      r.int(faceValueFields...),
		DiscountBps:    r.int(discountFields...),
		EscrowBps:      r.int(escrowRateFields...),
		PlatformFeeBps: r.int(platformFeeFields...),
		DueDate:        r.time("due_date"),
		CreatedAt:      r.time(createdFields...),
		FinancedAt:     r.time("financed_at"),
		PaidAt:         r.time(paidAtFields...),
		Status:         r.status(),
		Financier:      r.str(financierFields...),
		EscrowID:       r.str("escrow_id"),
		FundingID:      r.str("funding_id"),
		AmountPaid:     r.int(amountPaidFields...),
		AmountReceived: r.int(amountReceivedFields...),
		Description:    r.str("description"),
		LastTx:         obj.PreviousTx,
	}
	if inv.ID == "" {
		inv.ID = r.str("id")
	}
	if err := r.errs.Err(); err != nil {
		return Invoice{}, fmt.Errorf("%w: invoice %s: %w", ErrDecode, obj.ID, err)
	}

	if !inv.IsFinanced() {
		inv.AmountPaid = 0
		inv.AmountReceived = 0
	}
	if err := inv.Validate(); err != nil {
		return Invoice{}, fmt.Errorf("%w: invoice %s: %w", ErrDecode, obj.ID, err)
	}
	return inv, nil
}

// DecodeEscrow converts a ledger object into an Escrow.
func DecodeEscrow(obj chain.Object) (Escrow, error) {
	if err := checkType(obj, "Escrow"); err != nil {
		return Escrow{}, err
	}
	r := newRecord(obj.Fields)
	esc := Escrow{
		ID:             obj.ID,
		InvoiceID:      r.str("invoice_id"),
		Buyer:          r.str(buyerFields...),
		RequiredAmount: r.int("required_amount", "amount"),
		Paid:           r.bool("paid", "is_paid"),
	}
	if err := r.errs.Err(); err != nil {
		return Escrow{}, fmt.Errorf("%w: escrow %s: %w", ErrDecode, obj.ID, err)
	}
	return esc, nil
}

// DecodeFunding converts a ledger object into a Funding.
func DecodeFunding(obj chain.Object) (Funding, error) {
	if err := checkType(obj, "Funding"); err != nil {
		return Funding{}, err
	}
	r := newRecord(obj.Fields)
	f := Funding{
		ID:        obj.ID,
		InvoiceID: r.str("invoice_id"),
		Funder:    r.str("funder", "investor", "financier"),
		Amount:    r.int("amount", "invested_amount"),
	}
	if err := r.errs.Err(); err != nil {
		return Funding{}, fmt.Errorf("%w: funding %s: %w", ErrDecode, obj.ID, err)
	}
	return f, nil
}

// DecodeTreasury converts a ledger object into a Treasury.
func DecodeTreasury(obj chain.Object) (Treasury, error) {
	if err := checkType(obj, "Treasury"); err != nil {
		return Treasury{}, err
	}
	r := newRecord(obj.Fields)
	t := Treasury{
		ID:                obj.ID,
		Balance:           r.int("balance"),
		FeesCollected:     r.int("fees_collected", "total_fees"),
		OriginationFeeBps: r.int("origination_fee_bps"),
		TakeRateBps:       r.int("take_rate_bps"),
		SettlementFee:     r.int("settlement_fee", "settlement_fee_flat"),
	}
	if t.OriginationFeeBps < 0 || t.OriginationFeeBps > MaxBps {
		r.errs.Add("origination_fee_bps", "out of range")
	}
	if t.TakeRateBps < 0 || t.TakeRateBps > MaxBps {
		r.errs.Add("take_rate_bps", "out of range")
	}
	if t.SettlementFee < 0 {
		r.errs.Add("settlement_fee", "must not be negative")
	}
	if err := r.errs.Err(); err != nil {
		return Treasury{}, fmt.Errorf("%w: treasury %s: %w", ErrDecode, obj.ID, err)
	}
	return t, nil
}

// EventInvoiceID extracts the invoice identifier carried by an event payload.
func EventInvoiceID(payload json.RawMessage) string {
	return newRecord(payload).str(eventInvoiceFields...)
}

// CompanionInvoiceID returns the invoice_id field of an escrow or funding
// object, empty when the object does not name its invoice.
func CompanionInvoiceID(fields json.RawMessage) string {
	return newRecord(fields).str("invoice_id")
}

// EventTime extracts a timestamp field from an event payload, zero if absent.
func EventTime(payload json.RawMessage, names ...string) time.Time {
	return newRecord(payload).time(names...)
}

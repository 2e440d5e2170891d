package invoices

import (
	"sort"
	"strings"

	"github.com/invoicefi/reconciler/internal/invoice"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Sort keys.
const (
	SortCreatedAt = "created_at"
	SortDueDate   = "due_date"
	SortAmount    = "amount"
	SortDiscount  = "discount"
)

var sortKeys = map[string]func(invoice.Invoice) int64{
	SortCreatedAt: func(i invoice.Invoice) int64 { return i.CreatedAt.Unix() },
	SortDueDate:   func(i invoice.Invoice) int64 { return i.DueDate.Unix() },
	SortAmount:    func(i invoice.Invoice) int64 { return i.FaceValue },
	SortDiscount:  func(i invoice.Invoice) int64 { return i.DiscountBps },
}

// Criteria filters, orders and pages a listing. Zero values mean "any",
// except Limit which defaults to DefaultLimit.
type Criteria struct {
	Status string
	// Address matches the issuer, buyer or financier.
	Address   string
	MinAmount int64
	MaxAmount int64
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}

type query struct {
	status    *invoice.Status
	address   string
	minAmount int64
	maxAmount int64
	key       func(invoice.Invoice) int64
	desc      bool
	limit     int
	offset    int
}

// compile validates c before any ledger call.
func (c Criteria) compile() (query, error) {
	verr := &invoice.ValidationError{}
	q := query{
		address:   c.Address,
		minAmount: c.MinAmount,
		maxAmount: c.MaxAmount,
		limit:     c.Limit,
		offset:    c.Offset,
	}

	if c.Status != "" {
		s, err := invoice.ParseStatus(c.Status)
		if err != nil {
			verr.Add("status", err.Error())
		} else {
			q.status = &s
		}
	}
	if c.Address != "" {
		if err := invoice.ValidateAddress(c.Address); err != nil {
			verr.Add("address", err.Error())
		}
	}
	if c.MinAmount < 0 {
		verr.Add("min_amount", "must not be negative")
	}
	if c.MaxAmount < 0 {
		verr.Add("max_amount", "must not be negative")
	}
	if c.MaxAmount > 0 && c.MinAmount > c.MaxAmount {
		verr.Add("min_amount", "must not exceed max_amount")
	}

	sortBy := strings.ToLower(c.SortBy)
	if sortBy == "" {
		sortBy = SortCreatedAt
	}
	if key, ok := sortKeys[sortBy]; ok {
		q.key = key
	} else {
		verr.Add("sort_by", "must be one of amount, created_at, discount, due_date")
	}

	switch strings.ToLower(c.Order) {
	case "", "desc":
		q.desc = true
	case "asc":
	default:
		verr.Add("order", "must be asc or desc")
	}

	if q.limit == 0 {
		q.limit = DefaultLimit
	}
	if q.limit < 1 || q.limit > MaxLimit {
		verr.Add("limit", "must be between 1 and 100")
	}
	if q.offset < 0 {
		verr.Add("offset", "must not be negative")
	}

	return q, verr.Err()
}

func (q query) match(inv invoice.Invoice) bool {
	if q.status != nil && inv.Status != *q.status {
		return false
	}
	if q.address != "" && !inv.InvolvesParty(q.address) {
		return false
	}
	if inv.FaceValue < q.minAmount {
		return false
	}
	if q.maxAmount > 0 && inv.FaceValue > q.maxAmount {
		return false
	}
	return true
}

// apply filters, sorts and pages invoices. Ties are broken by id so the
// order is stable across polls.
func (q query) apply(all []invoice.Invoice) ([]invoice.Invoice, int) {
	matched := make([]invoice.Invoice, 0, len(all))
	for _, inv := range all {
		if q.match(inv) {
			matched = append(matched, inv)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := q.key(matched[i]), q.key(matched[j])
		if a != b {
			if q.desc {
				return a > b
			}
			return a < b
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if q.offset >= total {
		return []invoice.Invoice{}, total
	}
	end := q.offset + q.limit
	if end > total {
		end = total
	}
	return matched[q.offset:end], total
}

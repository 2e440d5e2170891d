// Package lifecycle replays invoice events into a status timeline and
// resolves the companion objects (escrow, funding) that are not owner-indexed.
package lifecycle

import (
	"strings"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// Classify maps an event type to the status it moves an invoice into. Event
// names carry no explicit tag, so the struct name is matched by substring.
func Classify(eventType string) (invoice.Status, bool) {
	name := chain.TypeName(eventType)
	switch {
	case strings.Contains(name, "Financed"):
		return invoice.StatusFinanced, true
	case strings.Contains(name, "Paid"), strings.Contains(name, "Settled"):
		return invoice.StatusPaid, true
	case strings.Contains(name, "Disputed"):
		return invoice.StatusDisputed, true
	case strings.Contains(name, "Defaulted"):
		return invoice.StatusDefaulted, true
	default:
		return 0, false
	}
}

package invoice

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// MaxBps is 100% in basis points.
	MaxBps = 10_000
	// MicroPerUnit converts micro-units to display units.
	MicroPerUnit = 1_000_000

	addressHexLen = 64
)

// ErrDecode marks a ledger object that cannot be turned into an entity.
var ErrDecode = errors.New("decode ledger object")

// ValidationError reports invalid input per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field error.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Err returns e when any field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ValidateAddress checks a 0x-prefixed hex ledger address of at most 32 bytes.
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return fmt.Errorf("address must start with 0x")
	}
	hex := address[2:]
	if len(hex) == 0 || len(hex) > addressHexLen {
		return fmt.Errorf("address must hold 1 to %d hex digits", addressHexLen)
	}
	for _, r := range hex {
		if !isHex(r) {
			return fmt.Errorf("address contains non-hex character %q", r)
		}
	}
	return nil
}

// NormalizeAddress lowercases a hex address and pads it to full length.
// Values that are not hex addresses are only lowercased.
func NormalizeAddress(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	if ValidateAddress(address) != nil {
		return address
	}
	return "0x" + strings.Repeat("0", addressHexLen-len(address[2:])) + address[2:]
}

// SameAddress compares two addresses after normalization. Empty never matches.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeAddress(a) == NormalizeAddress(b)
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ToDisplay converts micro-units to display units.
func ToDisplay(micro int64) float64 {
	return float64(micro) / MicroPerUnit
}

// FromDisplay converts display units to micro-units, rounding to the nearest micro-unit.
func FromDisplay(units float64) (int64, error) {
	if math.IsNaN(units) || math.IsInf(units, 0) {
		return 0, fmt.Errorf("amount is not finite")
	}
	micro := math.Round(units * MicroPerUnit)
	if micro >= math.MaxInt64 || micro < math.MinInt64 {
		return 0, fmt.Errorf("amount out of range")
	}
	return int64(micro), nil
}

package financing

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicefi/reconciler/internal/invoice"
)

var scenarioParams = Params{OriginationFeeBps: 100, TakeRateBps: 1000, SettlementFee: 10}

func TestCalculateScenario(t *testing.T) {
	q := Calculate(10_000, 200, 60, scenarioParams)

	assert.Equal(t, int64(200), q.DiscountAmount)
	assert.Equal(t, int64(9800), q.InvestorPays)
	assert.Equal(t, int64(98), q.OriginationFee)
	assert.Equal(t, int64(9702), q.SupplierReceives)
	assert.Equal(t, int64(20), q.ExpectedTakeRateFee)
	assert.Equal(t, int64(9970), q.ExpectedInvestorReceives)
	assert.Equal(t, int64(170), q.ExpectedNetProfit)
	assert.True(t, q.APYDefined)
	assert.InDelta(t, 10.55, q.ExpectedAPY, 0.01)
}

func TestCalculateIsDeterministic(t *testing.T) {
	a := Calculate(123_456_789, 345, 91, scenarioParams)
	b := Calculate(123_456_789, 345, 91, scenarioParams)
	assert.Equal(t, a, b)
}

func TestCalculateReconciles(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		face := rng.Int63n(1_000_000_000_000)
		discount := 1 + rng.Int63n(5000)
		days := 1 + rng.Int63n(720)
		p := Params{
			OriginationFeeBps: rng.Int63n(1000),
			TakeRateBps:       rng.Int63n(invoice.MaxBps + 1),
			SettlementFee:     rng.Int63n(100_000_000),
		}

		q := Calculate(face, discount, days, p)
		require.Equal(t, face-q.DiscountAmount, q.InvestorPays)
		require.Equal(t, face, q.DiscountAmount+q.InvestorPays)
		require.Equal(t, q.InvestorPays, q.OriginationFee+q.SupplierReceives)
		require.LessOrEqual(t, q.SupplierReceives, q.InvestorPays)
		require.Equal(t, face, q.ExpectedTakeRateFee+p.SettlementFee+q.ExpectedInvestorReceives)
		require.False(t, math.IsNaN(q.ExpectedAPY) || math.IsInf(q.ExpectedAPY, 0))
	}
}

func TestCalculateGuards(t *testing.T) {
	q := Calculate(10_000, 200, 0, scenarioParams)
	assert.False(t, q.APYDefined)
	assert.Zero(t, q.ExpectedAPY)

	q = Calculate(10_000, 200, -5, scenarioParams)
	assert.False(t, q.APYDefined)
	assert.Zero(t, q.ExpectedAPY)

	q = Calculate(10_000, invoice.MaxBps, 30, scenarioParams)
	assert.Zero(t, q.InvestorPays)
	assert.True(t, q.APYDefined)
	assert.Zero(t, q.ExpectedAPY)

	q = Calculate(0, 200, 30, scenarioParams)
	assert.Zero(t, q.ExpectedAPY)
}

func TestMulBpsDoesNotOverflow(t *testing.T) {
	assert.Equal(t, int64(math.MaxInt64/2), mulBps(math.MaxInt64, 5000))
	assert.Equal(t, int64(math.MaxInt64), mulBps(math.MaxInt64, invoice.MaxBps))
	assert.Equal(t, int64(-2), mulBps(-20_000, 1))
}

func TestRealizedAPY(t *testing.T) {
	financed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	paid := financed.Add(30 * 24 * time.Hour)

	apy, ok := RealizedAPY(9800, 10_000, financed, paid)
	require.True(t, ok)
	assert.InDelta(t, 200.0/9800.0*(365.0/30.0)*100, apy, 1e-9)

	_, ok = RealizedAPY(9800, 10_000, paid, financed)
	assert.False(t, ok)
	_, ok = RealizedAPY(9800, 10_000, financed, financed)
	assert.False(t, ok)
	_, ok = RealizedAPY(0, 10_000, financed, paid)
	assert.False(t, ok)
	_, ok = RealizedAPY(9800, 10_000, time.Time{}, paid)
	assert.False(t, ok)
}

func TestValidateOffer(t *testing.T) {
	q, err := ValidateOffer(Offer{FaceValue: 10_000, DiscountBps: 200, DaysUntilDue: 60}, scenarioParams, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), q.InvestorPays)

	cases := map[string]struct {
		offer Offer
		field string
	}{
		"zero discount":      {Offer{FaceValue: 10_000, DiscountBps: 0, DaysUntilDue: 60}, "discount_bps"},
		"negative discount":  {Offer{FaceValue: 10_000, DiscountBps: -1, DaysUntilDue: 60}, "discount_bps"},
		"malformed discount": {Offer{FaceValue: 10_000, DiscountBps: 5001, DaysUntilDue: 60}, "discount_bps"},
		"past due":           {Offer{FaceValue: 10_000, DiscountBps: 200, DaysUntilDue: 0}, "days_until_due"},
		"negative amount":    {Offer{FaceValue: -1, DiscountBps: 200, DaysUntilDue: 60}, "face_value"},
		"negative return":    {Offer{FaceValue: 100, DiscountBps: 1, DaysUntilDue: 60}, "expected_apy"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateOffer(tc.offer, scenarioParams, 5000)
			var verr *invoice.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestValidateParams(t *testing.T) {
	assert.NoError(t, ValidateParams(scenarioParams))
	assert.Error(t, ValidateParams(Params{OriginationFeeBps: 10_001}))
	assert.Error(t, ValidateParams(Params{SettlementFee: -1}))
}

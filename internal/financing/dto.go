package financing

import "github.com/invoicefi/reconciler/internal/invoice"

// QuoteRequest is the body of POST /financing/quote. Exactly one of
// FaceValue and FaceValueDisplay should be set.
type QuoteRequest struct {
	FaceValue        int64   `json:"face_value_micro"`
	FaceValueDisplay float64 `json:"face_value_display"`
	DiscountBps      int64   `json:"discount_bps"`
	DaysUntilDue     int64   `json:"days_until_due"`
}

// QuoteResponse renders a quote with micro-unit integers and explicit display values.
type QuoteResponse struct {
	FaceValue                int64   `json:"face_value_micro"`
	DiscountBps              int64   `json:"discount_bps"`
	DaysUntilDue             int64   `json:"days_until_due"`
	DiscountAmount           int64   `json:"discount_amount_micro"`
	InvestorPays             int64   `json:"investor_pays_micro"`
	OriginationFee           int64   `json:"origination_fee_micro"`
	SupplierReceives         int64   `json:"supplier_receives_micro"`
	ExpectedTakeRateFee      int64   `json:"expected_take_rate_fee_micro"`
	SettlementFee            int64   `json:"settlement_fee_micro"`
	ExpectedInvestorReceives int64   `json:"expected_investor_receives_micro"`
	ExpectedNetProfit        int64   `json:"expected_net_profit_micro"`
	InvestorPaysDisplay      float64 `json:"investor_pays_display"`
	SupplierReceivesDisplay  float64 `json:"supplier_receives_display"`
	NetProfitDisplay         float64 `json:"expected_net_profit_display"`
	ExpectedAPY              float64 `json:"expected_apy"`
	APYDefined               bool    `json:"apy_defined"`
	Params                   Params  `json:"params"`
}

// TreasuryResponse renders the treasury object.
type TreasuryResponse struct {
	ID                   string  `json:"id"`
	Balance              int64   `json:"balance_micro"`
	BalanceDisplay       float64 `json:"balance_display"`
	FeesCollected        int64   `json:"fees_collected_micro"`
	FeesCollectedDisplay float64 `json:"fees_collected_display"`
	Params               Params  `json:"params"`
	ParamsSource         string  `json:"params_source"`
}

func toQuoteResponse(q Quote, p Params) QuoteResponse {
	return QuoteResponse{
		FaceValue:                q.FaceValue,
		DiscountBps:              q.DiscountBps,
		DaysUntilDue:             q.DaysUntilDue,
		DiscountAmount:           q.DiscountAmount,
		InvestorPays:             q.InvestorPays,
		OriginationFee:           q.OriginationFee,
		SupplierReceives:         q.SupplierReceives,
		ExpectedTakeRateFee:      q.ExpectedTakeRateFee,
		SettlementFee:            q.SettlementFee,
		ExpectedInvestorReceives: q.ExpectedInvestorReceives,
		ExpectedNetProfit:        q.ExpectedNetProfit,
		InvestorPaysDisplay:      invoice.ToDisplay(q.InvestorPays),
		SupplierReceivesDisplay:  invoice.ToDisplay(q.SupplierReceives),
		NetProfitDisplay:         invoice.ToDisplay(q.ExpectedNetProfit),
		ExpectedAPY:              q.ExpectedAPY,
		APYDefined:               q.APYDefined,
		Params:                   p,
	}
}

package commission_fee

// PercentageCommissionFee charges a fixed fraction of the traded notional.
type PercentageCommissionFee struct {
	rate float64
}

func NewPercentageCommissionFee(rate float64) CommissionFee {
	return &PercentageCommissionFee{rate: rate}
}

func (c *PercentageCommissionFee) Rate() float64 {
	return c.rate
}

func (c *PercentageCommissionFee) Calculate(quantity float64, price float64) float64 {
	if quantity <= 0 || price <= 0 {
		return 0
	}

	return quantity * price * c.rate
}

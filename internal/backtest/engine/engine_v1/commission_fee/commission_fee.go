package commission_fee

type CommissionFee interface {
	// Rate returns the commission as a fraction of traded notional.
	Rate() float64
	// Calculate the commission fee for quantity shares filled at price.
	Calculate(quantity float64, price float64) float64
}

type Broker string

const (
	BrokerPercentage Broker = "percentage"
	BrokerZero       Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerPercentage,
	BrokerZero,
}

// GetCommissionFeeHandler returns the fee model of broker. rate is only used by percentage brokers.
func GetCommissionFeeHandler(broker Broker, rate float64) CommissionFee {
	switch broker {
	case BrokerPercentage:
		return NewPercentageCommissionFee(rate)
	case BrokerZero:
		return NewZeroCommissionFee()
	default:
		return NewPercentageCommissionFee(rate)
	}
}

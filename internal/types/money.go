// README: Common money value object used across modules.
package types

import "math"

// Money carries an amount in integer cents. Arithmetic stays exact; floats
// only appear at the edges via FromDollars/Dollars.
type Money struct {
	Amount   int64  `json:"amount_cents"`
	Currency string `json:"currency"`
}

const DefaultCurrency = "USD"

// FromDollars rounds a dollar amount to the nearest cent.
func FromDollars(v float64) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: DefaultCurrency}
}

func (m Money) Dollars() float64 {
	return float64(m.Amount) / 100
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

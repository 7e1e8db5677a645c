package aggregate

import (
	"github.com/shopspring/decimal"

	"resampler/internal/record"
	"resampler/pkg/model"
)

// Filter decides whether a bar disqualifies the whole day it belongs to
type Filter interface {
	Reject(b model.Bar) (bool, error)
}

// MinValueFilter rejects bars whose open, high, low or close is below Min
type MinValueFilter struct {
	Min decimal.Decimal
}

// NewMinValueFilter returns nil when min is not positive, meaning no filter
func NewMinValueFilter(min float64) Filter {
	if min <= 0 {
		return nil
	}
	return MinValueFilter{Min: decimal.NewFromFloat(min)}
}

// Reject implements Filter. Non-numeric prices are reported as record.ErrInvalidValue.
func (f MinValueFilter) Reject(b model.Bar) (bool, error) {
	prices, err := record.Prices(b)
	if err != nil {
		return false, err
	}
	for _, p := range prices {
		if p.LessThan(f.Min) {
			return true, nil
		}
	}
	return false, nil
}

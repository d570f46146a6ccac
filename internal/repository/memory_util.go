package repository

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

func toNullDecimal(v interface{}) decimal.NullDecimal {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return decimal.NullDecimal{Decimal: x, Valid: true}
	case decimal.NullDecimal:
		return x
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return decimal.NullDecimal{Decimal: d, Valid: true}
		}
	case string:
		if d, err := decimal.NewFromString(x); err == nil {
			return decimal.NullDecimal{Decimal: d, Valid: true}
		}
	case float64:
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(x), Valid: true}
	case int:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(x)), Valid: true}
	case int64:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(x), Valid: true}
	}
	return decimal.NullDecimal{}
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

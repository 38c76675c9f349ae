// Package units converts user-facing quantities into the base unit an
// ingredient is stocked in (grams, milliliters or units) and back.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseUnit is the unit an ingredient's stock and cost are stored in.
type BaseUnit string

const (
	Gram       BaseUnit = "g"
	Milliliter BaseUnit = "ml"
	Unit       BaseUnit = "unidad"
)

var (
	ErrUnknownUnit      = errors.New("unknown unit")
	ErrIncompatibleUnit = errors.New("incompatible unit")
	ErrInvalidNumber    = errors.New("invalid number")
)

type uom struct {
	base   BaseUnit
	factor decimal.Decimal
}

var (
	one      = decimal.NewFromInt(1)
	thousand = decimal.NewFromInt(1000)
)

var table = map[string]uom{
	"g":      {Gram, one},
	"kg":     {Gram, thousand},
	"ml":     {Milliliter, one},
	"l":      {Milliliter, thousand},
	"unidad": {Unit, one},
	"u":      {Unit, one},
	"un":     {Unit, one},
}

// ParseBase validates an ingredient's stored unit.
func ParseBase(s string) (BaseUnit, error) {
	switch b := BaseUnit(strings.ToLower(strings.TrimSpace(s))); b {
	case Gram, Milliliter, Unit:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// Known reports whether name is a unit of measure this package converts.
func Known(name string) bool {
	_, ok := table[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func lookup(name string, base BaseUnit) (uom, error) {
	u, ok := table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return uom{}, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
	if u.base != base {
		return uom{}, fmt.Errorf("%w: %q is not convertible to %s", ErrIncompatibleUnit, name, base)
	}
	return u, nil
}

// ToBase converts qty expressed in unit into the base unit.
func ToBase(qty decimal.Decimal, unit string, base BaseUnit) (decimal.Decimal, error) {
	u, err := lookup(unit, base)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(u.factor), nil
}

// FromBase converts a base quantity into unit. It is the exact inverse of
// ToBase for every unit sharing the base.
func FromBase(qtyBase decimal.Decimal, unit string, base BaseUnit) (decimal.Decimal, error) {
	u, err := lookup(unit, base)
	if err != nil {
		return decimal.Zero, err
	}
	return qtyBase.Div(u.factor), nil
}

// CostToBase turns a price per unit into a price per base unit
// (e.g. 2000 per kg -> 2 per g).
func CostToBase(unitCost decimal.Decimal, unit string, base BaseUnit) (decimal.Decimal, error) {
	u, err := lookup(unit, base)
	if err != nil {
		return decimal.Zero, err
	}
	return unitCost.Div(u.factor), nil
}

// DefaultCostUnit is the unit purchase prices are quoted in when the caller
// does not say.
func DefaultCostUnit(base BaseUnit) string {
	switch base {
	case Gram:
		return "kg"
	case Milliliter:
		return "l"
	}
	return string(Unit)
}

// Display picks the human unit for a base quantity: kilograms for grams,
// liters for milliliters, plain units otherwise.
func Display(qtyBase decimal.Decimal, base BaseUnit) (decimal.Decimal, string) {
	switch base {
	case Gram:
		return qtyBase.Div(thousand), "kg"
	case Milliliter:
		return qtyBase.Div(thousand), "L"
	}
	return qtyBase, "un"
}

// ParseLocaleNumber accepts both "1234.56" and the comma-decimal form
// "1.234,56". When a comma is present, dots are thousands separators.
func ParseLocaleNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return d, nil
}

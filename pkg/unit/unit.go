// Package unit classifies measurement unit tokens into families (weight,
// volume, count) and converts sizes to each family's base unit (g, ml, pcs).
// Prices are only comparable after normalizing to a base unit, and only
// within the same family.
package unit

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Family is the measurement family a unit belongs to.
type Family string

const (
	FamilyWeight Family = "weight"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

// Base unit tags per family.
const (
	BaseWeight = "g"
	BaseVolume = "ml"
	BaseCount  = "pcs"
)

// ErrUnknownUnit is returned when a token has no entry in the conversion
// table. Callers treat it as "size not normalizable", not as a hard failure.
var ErrUnknownUnit = errors.New("unknown unit")

// Unit is a classified measurement unit with its multiplier to the family
// base unit.
type Unit struct {
	Token      string
	Family     Family
	Multiplier decimal.Decimal
}

// conversions is the closed token table. Multipliers convert one unit to the
// family base (g, ml or pcs).
var conversions = map[string]Unit{
	// weight -> grams
	"g":       {Family: FamilyWeight, Multiplier: decimal.NewFromInt(1)},
	"gr":      {Family: FamilyWeight, Multiplier: decimal.NewFromInt(1)},
	"gram":    {Family: FamilyWeight, Multiplier: decimal.NewFromInt(1)},
	"kg":      {Family: FamilyWeight, Multiplier: decimal.NewFromInt(1000)},
	"kilo":    {Family: FamilyWeight, Multiplier: decimal.NewFromInt(1000)},
	"mg":      {Family: FamilyWeight, Multiplier: decimal.RequireFromString("0.001")},
	"lb":      {Family: FamilyWeight, Multiplier: decimal.RequireFromString("453.592")},
	"lbs":     {Family: FamilyWeight, Multiplier: decimal.RequireFromString("453.592")},
	"oz":      {Family: FamilyWeight, Multiplier: decimal.RequireFromString("28.3495")},
	"ons":     {Family: FamilyWeight, Multiplier: decimal.NewFromInt(100)},
	"kuintal": {Family: FamilyWeight, Multiplier: decimal.NewFromInt(100000)},

	// volume -> milliliters
	"ml":     {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1)},
	"cc":     {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1)},
	"l":      {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1000)},
	"lt":     {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1000)},
	"ltr":    {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1000)},
	"liter":  {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1000)},
	"litre":  {Family: FamilyVolume, Multiplier: decimal.NewFromInt(1000)},
	"fl_oz":  {Family: FamilyVolume, Multiplier: decimal.RequireFromString("29.5735")},
	"floz":   {Family: FamilyVolume, Multiplier: decimal.RequireFromString("29.5735")},
	"gallon": {Family: FamilyVolume, Multiplier: decimal.RequireFromString("3785.41")},
	"gal":    {Family: FamilyVolume, Multiplier: decimal.RequireFromString("3785.41")},

	// count -> pieces
	"pcs":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"pc":     {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"piece":  {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"pieces": {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"box":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"pack":   {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"pak":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"can":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"bottle": {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"btl":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"jar":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"unit":   {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"dus":    {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"karton": {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
	"sachet": {Family: FamilyCount, Multiplier: decimal.NewFromInt(1)},
}

// normalizeToken trims whitespace and punctuation and lowercases the token.
func normalizeToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	token = strings.Trim(token, ",;:()[]")
	// "fl oz", "fl.oz" and "fl. oz" all collapse to table keys.
	token = strings.ReplaceAll(token, ".", " ")
	token = strings.Join(strings.Fields(token), "_")
	return token
}

// Classify resolves a unit token to its family and base multiplier.
func Classify(token string) (Unit, error) {
	key := normalizeToken(token)
	if key == "" {
		return Unit{}, ErrUnknownUnit
	}
	u, ok := conversions[key]
	if !ok {
		return Unit{}, ErrUnknownUnit
	}
	u.Token = key
	return u, nil
}

// IsKnown reports whether the token maps to a unit family.
func IsKnown(token string) bool {
	_, err := Classify(token)
	return err == nil
}

// ToBase converts a size expressed in the given unit to the family base unit.
func ToBase(size decimal.Decimal, token string) (decimal.Decimal, Family, error) {
	u, err := Classify(token)
	if err != nil {
		return decimal.Zero, "", err
	}
	return size.Mul(u.Multiplier), u.Family, nil
}

// FromBase converts a base-unit value back into the given unit.
func FromBase(base decimal.Decimal, token string) (decimal.Decimal, error) {
	u, err := Classify(token)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Div(u.Multiplier), nil
}

// Comparable reports whether two unit tokens belong to the same family.
// Unknown tokens are never comparable.
func Comparable(a, b string) bool {
	ua, err := Classify(a)
	if err != nil {
		return false
	}
	ub, err := Classify(b)
	if err != nil {
		return false
	}
	return ua.Family == ub.Family
}

// BaseTag returns the base unit tag for a family.
func BaseTag(f Family) string {
	switch f {
	case FamilyWeight:
		return BaseWeight
	case FamilyVolume:
		return BaseVolume
	default:
		return BaseCount
	}
}

package unit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		token      string
		family     Family
		multiplier string
	}{
		{"kg", FamilyWeight, "1000"},
		{"KG", FamilyWeight, "1000"},
		{" g ", FamilyWeight, "1"},
		{"lb", FamilyWeight, "453.592"},
		{"l", FamilyVolume, "1000"},
		{"ml", FamilyVolume, "1"},
		{"fl oz", FamilyVolume, "29.5735"},
		{"fl. oz", FamilyVolume, "29.5735"},
		{"fl.oz", FamilyVolume, "29.5735"},
		{"gallon", FamilyVolume, "3785.41"},
		{"pcs", FamilyCount, "1"},
		{"Bottle", FamilyCount, "1"},
		{"pack.", FamilyCount, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			u, err := Classify(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.family, u.Family)
			assert.True(t, u.Multiplier.Equal(decimal.RequireFromString(tt.multiplier)),
				"multiplier %s != %s", u.Multiplier, tt.multiplier)
		})
	}
}

func TestClassify_UnknownUnit(t *testing.T) {
	for _, token := range []string{"", "furlong", "???", "kgs2"} {
		_, err := Classify(token)
		assert.ErrorIs(t, err, ErrUnknownUnit, "token %q", token)
	}
}

func TestToBase(t *testing.T) {
	base, family, err := ToBase(decimal.NewFromInt(5), "kg")
	require.NoError(t, err)
	assert.Equal(t, FamilyWeight, family)
	assert.True(t, base.Equal(decimal.NewFromInt(5000)))

	base, family, err = ToBase(decimal.RequireFromString("0.33"), "l")
	require.NoError(t, err)
	assert.Equal(t, FamilyVolume, family)
	assert.True(t, base.Equal(decimal.NewFromInt(330)))
}

// Conversion must be lossless within a family: to base and back recovers the
// original value up to 1e-6.
func TestConversionReversible(t *testing.T) {
	tolerance := decimal.RequireFromString("0.000001")
	values := []string{"1", "0.5", "2.75", "1000", "0.001"}
	tokens := []string{"kg", "g", "lb", "oz", "l", "ml", "gallon", "fl_oz", "pcs", "box"}

	for _, v := range values {
		for _, token := range tokens {
			size := decimal.RequireFromString(v)
			base, _, err := ToBase(size, token)
			require.NoError(t, err)
			back, err := FromBase(base, token)
			require.NoError(t, err)
			diff := back.Sub(size).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance),
				"%s %s: got %s back", v, token, back)
		}
	}
}

func TestComparable(t *testing.T) {
	assert.True(t, Comparable("kg", "g"))
	assert.True(t, Comparable("l", "ml"))
	assert.True(t, Comparable("pcs", "box"))
	assert.False(t, Comparable("kg", "ml"))
	assert.False(t, Comparable("pcs", "g"))
	assert.False(t, Comparable("kg", "nonsense"))
}

func TestBaseTag(t *testing.T) {
	assert.Equal(t, "g", BaseTag(FamilyWeight))
	assert.Equal(t, "ml", BaseTag(FamilyVolume))
	assert.Equal(t, "pcs", BaseTag(FamilyCount))
}

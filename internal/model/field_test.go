package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFieldRegistry(t *testing.T) {
	t.Parallel()

	fields := []FieldDefinition{
		{Name: "monto", Keywords: []string{"monto"}, Rule: ValidationRule{Kind: RuleAmount, Pattern: `^[\d.,]+$`}, Strategy: StrategyAnchoredSameLine, Required: true},
		{Name: "fecha", Keywords: []string{"fecha"}, Rule: ValidationRule{Kind: RuleDate}, Strategy: StrategyAnchoredSameLine, Required: true},
		{Name: "concepto", Keywords: []string{"concepto"}, Rule: ValidationRule{Kind: RuleText, Pattern: `([`}, Strategy: StrategyAnchoredMultiword},
	}

	reg := NewFieldRegistry(fields)

	t.Run("ByName returns correct definition", func(t *testing.T) {
		t.Parallel()
		f := reg.ByName("fecha")
		require.NotNil(t, f)
		assert.Equal(t, RuleDate, f.Rule.Kind)
	})

	t.Run("ByName returns nil for unknown field", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, reg.ByName("nonexistent"))
	})

	t.Run("Required returns only required fields in order", func(t *testing.T) {
		t.Parallel()
		req := reg.Required()
		require.Len(t, req, 2)
		assert.Equal(t, "monto", req[0].Name)
		assert.Equal(t, "fecha", req[1].Name)
	})

	t.Run("patterns are compiled", func(t *testing.T) {
		t.Parallel()
		require.NotNil(t, reg.ByName("monto").Rule.Regex)
		assert.Nil(t, reg.ByName("concepto").Rule.Regex, "invalid pattern is left uncompiled")
	})

	t.Run("Names keeps catalog order", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"monto", "fecha", "concepto"}, reg.Names())
	})
}

func TestParseSearchStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseSearchStrategy("anchored_multiword")
	require.NoError(t, err)
	assert.Equal(t, StrategyAnchoredMultiword, s)
	assert.True(t, s.Anchored())
	assert.False(t, StrategyGeneralScan.Anchored())

	_, err = ParseSearchStrategy("fuzzy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model: unknown search strategy "fuzzy"`)
}

func TestParseRuleKind(t *testing.T) {
	t.Parallel()

	k, err := ParseRuleKind("identification")
	require.NoError(t, err)
	assert.Equal(t, RuleIdentification, k)

	_, err = ParseRuleKind("currency")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model: unknown validation rule "currency"`)
}

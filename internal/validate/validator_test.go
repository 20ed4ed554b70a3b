package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/model"
)

func testRegistry() *model.FieldRegistry {
	return model.NewFieldRegistry([]model.FieldDefinition{
		{Name: "monto", Rule: model.ValidationRule{Kind: model.RuleAmount, Pattern: `^\d{1,3}(?:[.,]\d{3})*,\d{2}$|^\d+[,.]\d{2}$|^\d+(\.\d+)?$`}},
		{Name: "fecha", Rule: model.ValidationRule{Kind: model.RuleDate}},
		{Name: "operacion", Rule: model.ValidationRule{Kind: model.RuleReference, MinLength: 8, MaxLength: 20}},
		{Name: "identificacion", Rule: model.ValidationRule{Kind: model.RuleIdentification}},
		{Name: "concepto", Rule: model.ValidationRule{Kind: model.RuleText}},
	})
}

func fixedClock(s string) func() time.Time {
	now, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	now = now.Add(10 * time.Hour)
	return func() time.Time { return now }
}

func TestNormalizeAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"123,45", "123.45", true},
		{"123,456", "123456.00", true},
		{"Bs. 1.500,00", "1500.00", true},
		{"1,234,567", "1234567.00", true},
		{"50", "50.00", true},
		{"0,00", "", false},
		{"1.234.567", "", false},
		{"abc", "", false},
		{"", "", false},
		{"1000000000", "", false},
		{"999.999.999,99", "999999999.99", true},
		{".50", "0.50", true},
		{",50", "0.50", true},
		{"5.", "5.00", true},
		{"5,", "5.00", true},
		{"Bs.", "", false},
		{".", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			d, ok := NormalizeAmount(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, FormatAmount(d))
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	now := fixedClock("2025-01-01")()

	t.Run("past date accepted", func(t *testing.T) {
		t.Parallel()
		d, ok := ParseDate("31/12/2024", now)
		require.True(t, ok)
		assert.Equal(t, "2024-12-31", FormatDate(d))
	})

	t.Run("invalid calendar date rejected", func(t *testing.T) {
		t.Parallel()
		_, ok := ParseDate("31/02/2024", now)
		assert.False(t, ok)
	})

	t.Run("one day ahead accepted", func(t *testing.T) {
		t.Parallel()
		_, ok := ParseDate("02/01/2025", now)
		assert.True(t, ok)
	})

	t.Run("two days ahead rejected", func(t *testing.T) {
		t.Parallel()
		_, ok := ParseDate("03/01/2025", now)
		assert.False(t, ok)
	})

	t.Run("layouts", func(t *testing.T) {
		t.Parallel()
		for raw, want := range map[string]string{
			"15-06-2024": "2024-06-15",
			"15/06/24":   "2024-06-15",
			"15-06-24":   "2024-06-15",
			"2024-06-15": "2024-06-15",
			"5/6/2024":   "2024-06-05",
		} {
			d, ok := ParseDate(raw, now)
			require.True(t, ok, raw)
			assert.Equal(t, want, FormatDate(d), raw)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		t.Parallel()
		_, ok := ParseDate("fecha", now)
		assert.False(t, ok)
	})
}

func TestValidator_Normalize(t *testing.T) {
	t.Parallel()

	v := New(testRegistry(), WithClock(fixedClock("2025-01-01")))

	tests := []struct {
		field string
		raw   string
		want  string
		ok    bool
	}{
		{"monto", "1.234,56", "1234.56", true},
		{"fecha", "31/12/2024", "2024-12-31", true},
		{"fecha", "31/12/2099", "", false},
		{"operacion", "0012-3456-78", "0012345678", true},
		{"operacion", "12345", "", false},
		{"identificacion", "V-12.345.678", "12345678", true},
		{"identificacion", "123456", "", false},
		{"identificacion", "1234567890", "", false},
		{"concepto", "  pago  ", "pago", true},
		{"concepto", "   ", "", false},
		{"unknown_field", "anything", "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := v.Normalize(tt.field, tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, v.Validate(tt.field, tt.raw))
		})
	}
}

func TestValidator_RelaxedReference(t *testing.T) {
	t.Parallel()

	v := New(testRegistry())
	_, ok := v.NormalizeMode("operacion", "1234567", Strict)
	assert.False(t, ok, "strict bound is 8")

	got, ok := v.NormalizeMode("operacion", "1234567", Relaxed)
	assert.True(t, ok)
	assert.Equal(t, "1234567", got)
}

func TestValidator_Matches(t *testing.T) {
	t.Parallel()

	v := New(testRegistry())
	def := v.fields.ByName("monto")

	got, ok := v.Matches(def, "1.500,00", Strict)
	require.True(t, ok)
	assert.Equal(t, "1500.00", got)

	_, ok = v.Matches(def, "Bs1.500,00", Strict)
	assert.False(t, ok, "pattern must match the whole token")

	got, ok = v.Matches(def, "Bs1.500,00", Relaxed)
	assert.True(t, ok, "relaxed mode skips the pattern")
	assert.Equal(t, "1500.00", got)
}

func TestFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "operacion", Fold("OPERACIÓN"))
	assert.True(t, ContainsFolded("Nro. Operación:", "operacion"))
	assert.True(t, ContainsFolded("Cédula", "cedula"))
	assert.False(t, ContainsFolded("Monto", ""))
	assert.False(t, ContainsFolded("Monto", "fecha"))
}

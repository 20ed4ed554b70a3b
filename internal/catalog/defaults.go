package catalog

import "github.com/sells-group/receipt-ocr/internal/model"

// DefaultFields is the built-in field catalog for Venezuelan mobile-payment
// receipts, used when no fields file is configured.
func DefaultFields() []model.FieldDefinition {
	return []model.FieldDefinition{
		{
			Name:        "monto",
			Keywords:    []string{"Bs", "Monto", "Total", "Importe", "Valor", "Monto Total", "Bs.D", "bolivares"},
			Rule:        model.ValidationRule{Kind: model.RuleAmount, Pattern: `\d{1,3}(?:[.,]\d{3})*,\d{2}|\d+[,.]\d{2}|\d+(?:\.\d+)?`},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 300, Y: 100},
			Required:    true,
			Fallback:    &model.RelRect{Left: 0.3, Top: 0.25, Width: 0.4, Height: 0.1},
		},
		{
			Name:        "fecha",
			Keywords:    []string{"Fecha:", "Fecha", "Dia", "Día", "Date", "Fechas"},
			Rule:        model.ValidationRule{Kind: model.RuleDate, Pattern: `\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2}`},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 200, Y: 50},
			Required:    true,
			Fallback:    &model.RelRect{Left: 0.5, Top: 0.4, Width: 0.4, Height: 0.08},
		},
		{
			Name:        "operacion",
			Keywords:    []string{"Operación:", "Operacion", "Nro Operación", "Número Operación", "Ref", "Referencia"},
			Rule:        model.ValidationRule{Kind: model.RuleReference, Pattern: `\d{8,20}|[A-Z0-9]{8,20}`, MinLength: 8, MaxLength: 20},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 350, Y: 50},
			Required:    true,
			Fallback:    &model.RelRect{Left: 0.4, Top: 0.5, Width: 0.5, Height: 0.08},
		},
		{
			Name:        "identificacion",
			Keywords:    []string{"Identificación:", "Identificacion", "C.I.", "CI", "Cédula", "Cedula", "V-", "E-", "J-"},
			Rule:        model.ValidationRule{Kind: model.RuleIdentification, Pattern: `[VEJ]-?\d{7,9}|\d{7,9}`},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 200, Y: 50},
			Required:    true,
			Fallback:    &model.RelRect{Left: 0.4, Top: 0.65, Width: 0.4, Height: 0.08},
		},
		{
			Name:        "origen_numero",
			Keywords:    []string{"Origen:", "Origen", "Telefono Origen", "Cta Origen", "Cuenta Origen"},
			Rule:        model.ValidationRule{Kind: model.RuleReference, Pattern: `\d{10,}|[X*]{3,}\d{4}`, MinLength: 4, MaxLength: 20},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 250, Y: 50},
		},
		{
			Name:        "destino_numero",
			Keywords:    []string{"Destino:", "Destino", "Telefono Destino", "Cta Destino", "Cuenta Destino"},
			Rule:        model.ValidationRule{Kind: model.RuleReference, Pattern: `\d{10,}`, MinLength: 10, MaxLength: 20},
			Strategy:    model.StrategyAnchoredSameLine,
			MaxDistance: model.Distance{X: 250, Y: 50},
			Fallback:    &model.RelRect{Left: 0.4, Top: 0.75, Width: 0.4, Height: 0.08},
		},
		{
			Name:        "banco_completo",
			Keywords:    []string{"Banco:", "Banco", "Bco", "Banco Origen", "Banco Destino"},
			Rule:        model.ValidationRule{Kind: model.RuleText, Pattern: `[A-Za-z\s\d\-]+|\d{4}\s*-\s*[A-Za-z\s]+`},
			Strategy:    model.StrategyAnchoredMultiword,
			MaxDistance: model.Distance{X: 500, Y: 50},
			Fallback:    &model.RelRect{Left: 0.2, Top: 0.85, Width: 0.6, Height: 0.08},
		},
		{
			Name:        "concepto",
			Keywords:    []string{"Concepto:", "Concepto", "Desc", "Descripción", "Detalle"},
			Rule:        model.ValidationRule{Kind: model.RuleText, Pattern: `.+`},
			Strategy:    model.StrategyAnchoredMultiword,
			MaxDistance: model.Distance{X: 400, Y: 100},
		},
		{
			Name:     "nombre_o_info_completa",
			Rule:     model.ValidationRule{Kind: model.RuleText, Pattern: `[A-Za-zÀ-ÿ\s]{5,}`},
			Strategy: model.StrategyGeneralScan,
			MinWords: 2,
		},
	}
}

package fel_test

import (
	"testing"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	"github.com/jhoicas/fel-certificador/internal/domain/fel"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func iva12(include bool) []entity.LineTax {
	return []entity.LineTax{{Name: "IVA 12%", Rate: d("12"), PriceInclude: include}}
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenario de referencia: 2 x 100.00 con IVA 12% incluido.
// El precio se divide entre 1.12 antes de separar el impuesto:
//
//	base = round(200 / 1.12, 2) = 178.57
//	iva  = round(178.57 * 0.12, 2) = 21.43
//	total = 200.00
// ──────────────────────────────────────────────────────────────────────────────

func TestCalculateLine_IVAIncluido(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:  d("2"),
		UnitPrice: d("100.00"),
		Taxes:     iva12(true),
	})

	assert.Equal(t, "200.00", b.Gross.StringFixed(2))
	assert.Equal(t, "0.00", b.Discount.StringFixed(2))
	assert.Equal(t, "178.57", b.TaxableBase.StringFixed(2), "MontoGravable")
	assert.Equal(t, "21.43", b.TaxAmount.StringFixed(2), "MontoImpuesto")
	assert.Equal(t, "200.00", b.Total.StringFixed(2))
	assert.Equal(t, "IVA", b.TaxName)
	assert.False(t, b.Adjusted)
	assert.False(t, b.Exempt())
}

func TestCalculateLine_IVAExcluidoConDescuento(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:    d("1"),
		UnitPrice:   d("100"),
		DiscountPct: d("10"),
		Taxes:       iva12(false),
	})

	assert.Equal(t, "100.00", b.Gross.StringFixed(2))
	assert.Equal(t, "10.00", b.Discount.StringFixed(2))
	assert.Equal(t, "90.00", b.TaxableBase.StringFixed(2))
	assert.Equal(t, "10.80", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "100.80", b.Total.StringFixed(2))
}

func TestCalculateLine_DescuentoTotalEmiteCeros(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:    d("3"),
		UnitPrice:   d("50"),
		DiscountPct: d("100"),
		Taxes:       iva12(true),
	})

	assert.Equal(t, "150.00", b.Gross.StringFixed(2))
	assert.Equal(t, "150.00", b.Discount.StringFixed(2))
	assert.True(t, b.TaxableBase.IsZero())
	assert.True(t, b.TaxAmount.IsZero())
	assert.True(t, b.Total.IsZero())
}

func TestCalculateLine_SinImpuestoUsaIVADefault(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{Quantity: d("1"), UnitPrice: d("100")})

	assert.Equal(t, "12", b.Rate.String())
	assert.Equal(t, "12.00", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "112.00", b.Total.StringFixed(2))
}

func TestCalculateLine_TasaCeroEsExenta(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:  d("1"),
		UnitPrice: d("80"),
		Taxes:     []entity.LineTax{{Name: "Exento", Rate: decimal.Zero}},
	})

	assert.True(t, b.Exempt())
	assert.True(t, b.TaxAmount.IsZero())
	assert.Equal(t, "80.00", b.Total.StringFixed(2))
}

func TestCalculateLine_DescuentoTotalNoEsExento(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:    d("1"),
		UnitPrice:   d("80"),
		DiscountPct: d("100"),
	})

	assert.False(t, b.Exempt(), "base cero por descuento no cambia el tipo de impuesto")
	assert.True(t, b.TaxableBase.IsZero())
	assert.True(t, b.Total.IsZero())
}

func TestFELLine_InScopeSoloExcluyeSeccionesYNotas(t *testing.T) {
	one := d("1")
	assert.True(t, entity.FELLine{Quantity: one}.InScope())
	assert.True(t, entity.FELLine{Quantity: one, DisplayType: "product"}.InScope())
	assert.False(t, entity.FELLine{Quantity: one, DisplayType: entity.DisplayTypeSection}.InScope())
	assert.False(t, entity.FELLine{Quantity: one, DisplayType: entity.DisplayTypeNote}.InScope())
	assert.False(t, entity.FELLine{Quantity: decimal.Zero, DisplayType: "product"}.InScope())
}

func TestCalculateLine_CantidadNegativaNotaCredito(t *testing.T) {
	b := fel.CalculateLine(entity.FELLine{
		Quantity:  d("-2"),
		UnitPrice: d("100.00"),
		Taxes:     iva12(true),
	})

	assert.Equal(t, "178.57", b.TaxableBase.StringFixed(2))
	assert.Equal(t, "200.00", b.Total.StringFixed(2))
}

func TestCalculateLine_SumaDeComponentesPrevalece(t *testing.T) {
	// 0.125 + 12%: la base redondea a 0.13 e IVA a 0.02 (total 0.15),
	// mientras que round(0.125 * 1.12, 2) = 0.14.
	b := fel.CalculateLine(entity.FELLine{
		Quantity:  d("1"),
		UnitPrice: d("0.125"),
		Taxes:     iva12(false),
	})

	assert.Equal(t, "0.13", b.TaxableBase.StringFixed(2))
	assert.Equal(t, "0.02", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "0.15", b.Total.StringFixed(2))
	assert.True(t, b.Adjusted, "el total independiente (0.14) debe reemplazarse")
	assert.True(t, b.Total.Equal(b.TaxableBase.Add(b.TaxAmount).Round(2)))
}

func TestCalculateDocument_IgnoraLineasFueraDeAlcance(t *testing.T) {
	lines := []entity.FELLine{
		{Description: "Servicios", DisplayType: entity.DisplayTypeSection},
		{Quantity: d("2"), UnitPrice: d("100.00"), Taxes: iva12(true)},
		{Description: "entregar en bodega", DisplayType: entity.DisplayTypeNote, Quantity: d("1"), UnitPrice: d("999")},
		{Quantity: decimal.Zero, UnitPrice: d("500"), Taxes: iva12(true)},
		{Quantity: d("1"), UnitPrice: d("100"), Taxes: iva12(false)},
	}

	totals := fel.CalculateDocument(lines)

	require.Len(t, totals.Lines, 2, "solo dos líneas certificables")
	assert.Equal(t, "278.57", totals.TaxableBase.StringFixed(2))
	assert.Equal(t, "33.43", totals.TotalTax.StringFixed(2))
	assert.Equal(t, "312.00", totals.GrandTotal.StringFixed(2))
	assert.Equal(t, []string{"IVA"}, totals.TaxNames)
	assert.Equal(t, "33.43", totals.TaxByName["IVA"].StringFixed(2))
}

func TestCalculateDocument_SumaDeLineasIgualGranTotal(t *testing.T) {
	lines := []entity.FELLine{
		{Quantity: d("3"), UnitPrice: d("19.99"), DiscountPct: d("7.5"), Taxes: iva12(true)},
		{Quantity: d("1.5"), UnitPrice: d("33.33"), Taxes: iva12(true)},
		{Quantity: d("7"), UnitPrice: d("0.99"), Taxes: iva12(false)},
		{Quantity: d("1"), UnitPrice: d("0.125"), Taxes: iva12(false)},
	}

	first := fel.CalculateDocument(lines)
	sum := decimal.Zero
	for _, b := range first.Lines {
		sum = sum.Add(b.Total)
	}
	assert.True(t, sum.Round(2).Equal(first.GrandTotal), "Σ totales de línea = GranTotal")

	second := fel.SumBreakdowns(first.Lines)
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal), "recalcular es idempotente")
	assert.True(t, first.TotalTax.Equal(second.TotalTax))
}

func TestCalculateDocument_SinLineas(t *testing.T) {
	totals := fel.CalculateDocument(nil)
	assert.Empty(t, totals.Lines)
	assert.True(t, totals.GrandTotal.IsZero())
}

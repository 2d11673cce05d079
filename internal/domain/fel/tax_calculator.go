package fel

import (
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	sat "github.com/jhoicas/fel-certificador/pkg/fel"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	defaultIVA = decimal.NewFromInt(sat.TasaIVADefault)
)

// TaxBreakdown desglose de una línea, todos los montos redondeados a 2 decimales.
// Invariante: Total == round(TaxableBase + TaxAmount, 2).
type TaxBreakdown struct {
	Gross       decimal.Decimal // cantidad * precio unitario
	Discount    decimal.Decimal
	TaxableBase decimal.Decimal // MontoGravable
	TaxAmount   decimal.Decimal // MontoImpuesto
	Total       decimal.Decimal
	TaxName     string          // NombreCorto
	Rate        decimal.Decimal // porcentaje aplicado
	// Adjusted indica que el total calculado de forma independiente difería
	// y se reemplazó por la suma de componentes.
	Adjusted bool
	// ExemptTax la línea trae impuestos configurados que suman 0%.
	ExemptTax bool
}

// Exempt indica si la línea es exenta (CodigoUnidadGravable 2). Depende del
// impuesto configurado, no de una base que el descuento dejó en cero.
func (b TaxBreakdown) Exempt() bool {
	return b.ExemptTax
}

// CalculateLine calcula el desglose de una línea. Cantidad y precio se toman en valor
// absoluto (las notas de crédito pueden traer cantidades negativas).
//
//	gross     = round(q * pu, 2)
//	discount  = round(gross * pct / 100, 2)
//	excluded  = pu * (1 - pct/100) * q / (1 + Σ tasas incluidas / 100)
//	base      = round(excluded, 2)
//	tax       = round(base * tasa / 100, 2)
//	total     = round(base + tax, 2)
func CalculateLine(line entity.FELLine) TaxBreakdown {
	qty := line.Quantity.Abs()
	unit := line.UnitPrice.Abs()
	pct := line.DiscountPct

	gross := qty.Mul(unit).Round(2)
	discount := gross.Mul(pct).Div(hundred).Round(2)

	netUnit := unit.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
	amount := netUnit.Mul(qty)

	rate, included := decimal.Zero, decimal.Zero
	for _, t := range line.Taxes {
		rate = rate.Add(t.Rate)
		if t.PriceInclude {
			included = included.Add(t.Rate)
		}
	}

	excluded := amount
	if !included.IsZero() {
		excluded = amount.Div(decimal.NewFromInt(1).Add(included.Div(hundred)))
	}
	base := excluded.Round(2)

	if len(line.Taxes) == 0 && base.IsPositive() {
		rate = defaultIVA
	}

	tax := base.Mul(rate).Div(hundred).Round(2)
	total := base.Add(tax).Round(2)

	// total "con impuesto" sin pasar por los componentes redondeados
	independent := excluded.Add(excluded.Mul(rate).Div(hundred)).Round(2)

	return TaxBreakdown{
		Gross:       gross,
		Discount:    discount,
		TaxableBase: base,
		TaxAmount:   tax,
		Total:       total,
		TaxName:     sat.ImpuestoIVA,
		Rate:        rate,
		Adjusted:    !independent.Equal(total),
		ExemptTax:   len(line.Taxes) > 0 && rate.IsZero(),
	}
}

// AnyExempt indica si alguna línea es exenta.
func AnyExempt(breakdowns []TaxBreakdown) bool {
	for _, b := range breakdowns {
		if b.Exempt() {
			return true
		}
	}
	return false
}

// DocumentTotals totales del documento como suma de los desgloses de línea.
type DocumentTotals struct {
	Lines       []TaxBreakdown
	TaxableBase decimal.Decimal
	TaxByName   map[string]decimal.Decimal
	TaxNames    []string // orden de primera aparición
	TotalTax    decimal.Decimal
	GrandTotal  decimal.Decimal
}

// CalculateDocument calcula las líneas certificables y sus totales.
// Las líneas fuera de alcance (secciones, notas, cantidad cero) no se recorren.
func CalculateDocument(lines []entity.FELLine) DocumentTotals {
	breakdowns := make([]TaxBreakdown, 0, len(lines))
	for _, l := range lines {
		if !l.InScope() {
			continue
		}
		breakdowns = append(breakdowns, CalculateLine(l))
	}
	return SumBreakdowns(breakdowns)
}

// SumBreakdowns suma elemento a elemento y vuelve a redondear cada total a 2 decimales.
func SumBreakdowns(breakdowns []TaxBreakdown) DocumentTotals {
	t := DocumentTotals{
		Lines:       breakdowns,
		TaxableBase: decimal.Zero,
		TaxByName:   map[string]decimal.Decimal{},
		TotalTax:    decimal.Zero,
		GrandTotal:  decimal.Zero,
	}
	for _, b := range breakdowns {
		t.TaxableBase = t.TaxableBase.Add(b.TaxableBase)
		t.TotalTax = t.TotalTax.Add(b.TaxAmount)
		t.GrandTotal = t.GrandTotal.Add(b.Total)
		if _, ok := t.TaxByName[b.TaxName]; !ok {
			t.TaxNames = append(t.TaxNames, b.TaxName)
			t.TaxByName[b.TaxName] = decimal.Zero
		}
		t.TaxByName[b.TaxName] = t.TaxByName[b.TaxName].Add(b.TaxAmount)
	}
	t.TaxableBase = t.TaxableBase.Round(2)
	t.TotalTax = t.TotalTax.Round(2)
	t.GrandTotal = t.GrandTotal.Round(2)
	for name, v := range t.TaxByName {
		t.TaxByName[name] = v.Round(2)
	}
	return t
}

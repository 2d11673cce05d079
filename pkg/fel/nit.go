package fel

import (
	"fmt"
	"strings"
	"unicode"
)

// CleanNIT deja solo dígitos y K (mayúscula). "1234567-k" -> "1234567K".
func CleanNIT(nit string) string {
	var b strings.Builder
	for _, r := range nit {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'k' || r == 'K':
			b.WriteRune('K')
		}
	}
	return b.String()
}

// CleanCUI deja solo los dígitos del CUI (DPI).
func CleanCUI(cui string) string {
	var b strings.Builder
	for _, r := range cui {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeReceptorID normaliza el IDReceptor: quita todo lo que no sea alfanumérico,
// pasa a mayúsculas y usa CF cuando queda vacío.
func NormalizeReceptorID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return ReceptorConsumidorFinal
	}
	return b.String()
}

// ComputeNITCheckDigit calcula el dígito verificador (módulo 11 SAT) para el cuerpo del NIT.
// Los pesos van de len(cuerpo)+1 (primer dígito) hasta 2 (último); un resultado de 10 es 'K'.
func ComputeNITCheckDigit(body string) (byte, error) {
	if body == "" {
		return 0, fmt.Errorf("fel: cuerpo de NIT vacío")
	}
	sum := 0
	weight := len(body) + 1
	for _, r := range body {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("fel: el cuerpo del NIT solo admite dígitos, se encontró %q", r)
		}
		sum += int(r-'0') * weight
		weight--
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return 'K', nil
	}
	return byte('0' + check), nil
}

// ValidateNIT valida el dígito verificador de un NIT guatemalteco (con o sin guion).
// CF (consumidor final) siempre es válido.
func ValidateNIT(nit string) error {
	clean := CleanNIT(nit)
	if strings.EqualFold(strings.TrimSpace(nit), ReceptorConsumidorFinal) {
		return nil
	}
	if len(clean) < 2 {
		return fmt.Errorf("fel: NIT debe tener al menos 2 caracteres, se encontraron %d", len(clean))
	}
	body, got := clean[:len(clean)-1], clean[len(clean)-1]
	if strings.ContainsRune(body, 'K') {
		return fmt.Errorf("fel: K solo puede ser el dígito verificador del NIT")
	}
	expected, err := ComputeNITCheckDigit(body)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("fel: dígito verificador del NIT inválido: esperado %c, recibido %c", expected, got)
	}
	return nil
}

// ValidateCUI comprueba que el CUI tenga 13 dígitos.
func ValidateCUI(cui string) error {
	clean := CleanCUI(cui)
	if len(clean) != 13 {
		return fmt.Errorf("fel: CUI debe tener 13 dígitos, se encontraron %d", len(clean))
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jhoicas/fel-certificador/internal/application/billing"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
)

// readSnapshot carga un documento desde un archivo JSON.
func readSnapshot(path string) (*entity.FELDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer snapshot: %w", err)
	}
	var doc entity.FELDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot %s inválido: %w", path, err)
	}
	return &doc, nil
}

// writeSnapshot reescribe el snapshot de forma atómica (tmp + rename).
func writeSnapshot(path string, doc *entity.FELDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("escribir snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// applyOutcome aplica el Patch al documento si el estado no cambió desde la lectura.
func applyOutcome(doc *entity.FELDocument, out *billing.Outcome) (bool, error) {
	if out == nil || out.Patch == nil {
		return false, nil
	}
	if doc.EffectiveStatus() != out.Patch.From {
		return false, fmt.Errorf("el documento cambió de estado (%s, se esperaba %s)", doc.EffectiveStatus(), out.Patch.From)
	}
	doc.FEL = out.Patch.State
	return true, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

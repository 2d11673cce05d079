package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build <snapshot.json>",
	Short: "Genera el XML DTE sin enviarlo",
	Long: `Genera el XML de certificación del snapshot y lo escribe en stdout
o en --output. El digest SHA-256 del XML canónico se imprime en stderr.

Ejemplos:
  felctl build factura.json
  felctl build factura.json -o factura.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Archivo de salida (por defecto stdout)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	doc, err := readSnapshot(args[0])
	if err != nil {
		return err
	}
	ctrl, err := newController(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	payload, err := ctrl.Preview(ctx, doc)
	if err != nil {
		return err
	}
	if digest, err := payload.Digest(); err == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s digest=%s total=%s\n",
			doc.Name, payload.DocType, digest, payload.Totals.GrandTotal.StringFixed(2))
	}

	if buildOutput == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), payload.String())
		return err
	}
	return os.WriteFile(buildOutput, []byte(payload.String()), 0o644)
}

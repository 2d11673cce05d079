package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <uuid>",
	Short: "Consulta el estado de un DTE en el certificador",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res, err := ctrl.Query(ctx, "", args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var nitCmd = &cobra.Command{
	Use:   "nit <nit>",
	Short: "Consulta el nombre registrado de un NIT",
	Long: `Valida el dígito verificador y consulta el NIT en INFILE.
"CF" (consumidor final) se resuelve sin llamada remota.

Ejemplos:
  felctl nit 1234567-9
  felctl nit CF`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		info, err := ctrl.LookupTaxID(ctx, "", args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var cuiCmd = &cobra.Command{
	Use:   "cui <cui>",
	Short: "Consulta un CUI (DPI) en el RENAP vía INFILE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		info, err := ctrl.LookupPersonID(ctx, "", args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, nitCmd, cuiCmd)
}

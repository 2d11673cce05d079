package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/fel-certificador/internal/application/billing"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
)

var certifyCmd = &cobra.Command{
	Use:   "certify <snapshot.json>",
	Short: "Certifica el documento y actualiza el snapshot",
	Long: `Valida el documento, genera el XML DTE y lo envía al certificador.
El snapshot queda en estado certified o error según el resultado.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args[0], (*billing.FELController).Certify)
	},
}

var annulCmd = &cobra.Command{
	Use:   "annul <snapshot.json>",
	Short: "Anula un documento certificado",
	Long: `Envía la anulación del DTE. El motivo se toma del campo ref del
snapshot. Si el certificador la rechaza el snapshot no cambia.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args[0], (*billing.FELController).Annul)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <snapshot.json>",
	Short: "Reintenta la certificación de un documento en estado error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args[0], (*billing.FELController).Retry)
	},
}

func init() {
	rootCmd.AddCommand(certifyCmd, annulCmd, retryCmd)
}

type lifecycleFn func(c *billing.FELController, ctx context.Context, doc *entity.FELDocument) (*billing.Outcome, error)

// runLifecycle ejecuta la operación, persiste el Patch en el snapshot (también
// el de error) y devuelve el error de la operación.
func runLifecycle(cmd *cobra.Command, path string, fn lifecycleFn) error {
	doc, err := readSnapshot(path)
	if err != nil {
		return err
	}
	ctrl, err := newController(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, opErr := fn(ctrl, ctx, doc)
	changed, err := applyOutcome(doc, out)
	if err != nil {
		return err
	}
	if changed {
		if err := writeSnapshot(path, doc); err != nil {
			return err
		}
	}
	if opErr != nil {
		return opErr
	}

	if out != nil && out.Result != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", doc.Name, out.Result.Message)
	}
	return printJSON(cmd.OutOrStdout(), doc.FEL)
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jhoicas/fel-certificador/internal/application/auth"
	"github.com/jhoicas/fel-certificador/internal/application/dto"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	"github.com/jhoicas/fel-certificador/internal/infrastructure/postgres"
	"github.com/jhoicas/fel-certificador/pkg/config"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

var (
	userCompany  string
	userEmail    string
	userPassword string
	userName     string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Administración de operadores de la API",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Crea un operador directamente en la base de datos",
	Long: `Crea un usuario sin pasar por la API. Sirve para dar de alta el
primer admin de una empresa; los siguientes se crean con POST /api/auth/users.

Ejemplos:
  felctl user add --company 7f9c... --email admin@empresa.gt --password s3creto123 --role admin`,
	Args: cobra.NoArgs,
	RunE: runUserAdd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().StringVar(&userCompany, "company", "", "ID de la empresa (requerido)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email del operador (requerido)")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Contraseña, mínimo 8 caracteres (requerido)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Nombre visible")
	userAddCmd.Flags().StringVar(&userRole, "role", entity.RoleAdmin, "admin | contador | vendedor")
	_ = userAddCmd.MarkFlagRequired("company")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Env: "development", Level: "warn", Output: cmd.ErrOrStderr()})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	uc := auth.NewAuthUseCase(postgres.NewUserRepository(pool), auth.JWTConfig{}, log)
	out, err := uc.RegisterUser(ctx, userCompany, dto.RegisterRequest{
		Email:    userEmail,
		Password: userPassword,
		Name:     userName,
		Role:     userRole,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

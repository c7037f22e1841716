package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/fathom-labs/corpus/internal/config"
	"github.com/fathom-labs/corpus/internal/database"
	"github.com/fathom-labs/corpus/internal/repository"
	"github.com/fathom-labs/corpus/internal/service"
)

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Register users and issue access tokens",
	}

	cmd.AddCommand(UserRegisterCmd())
	cmd.AddCommand(UserTokenCmd())

	return cmd
}

func UserRegisterCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Register a new user",
		Long:  "Register a new user and print their access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runUserRegister(args[0], name, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name for the user")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runUserRegister(email, name, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewUserRepository(pool))

	user, token, err := authSvc.Register(ctx, email, name)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"email": user.Email,
			"name":  user.Name,
			"token": token,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("User registered: %s\n", user.Email)
		fmt.Printf("Access token: %s\n", token)
		fmt.Println("Store this token now; it cannot be retrieved later.")
	}

	return nil
}

func UserTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a new access token",
		Long:  "Issue a new access token for a user, invalidating the previous one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runUserToken(args[0], outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runUserToken(email, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewUserRepository(pool))

	token, err := authSvc.IssueToken(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(map[string]string{"token": token}, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Access token: %s\n", token)
		fmt.Println("The previous token for this user is no longer valid.")
	}

	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamalehq/tamalebot/internal/vault"
)

func vaultCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "vault",
		Short: "Manage the encrypted credential vault",
	}

	var credType, description string
	set := &cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Store a credential",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			withVault(func(ctx context.Context, v *vault.Vault) error {
				err := v.Set(ctx, args[0], args[1], vault.SetOptions{
					Type:        vault.CredentialType(credType),
					Description: description,
				})
				if err != nil {
					return err
				}
				fmt.Printf("stored %s (%s)\n", args[0], vault.Mask(args[1]))
				return nil
			})
		},
	}
	set.Flags().StringVar(&credType, "type", string(vault.TypeGeneric), "credential type")
	set.Flags().StringVar(&description, "description", "", "description")

	get := &cobra.Command{
		Use:   "get NAME",
		Short: "Show a credential (masked)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withVault(func(ctx context.Context, v *vault.Vault) error {
				cred, err := v.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if cred == nil {
					return fmt.Errorf("credential %s not found", args[0])
				}
				fmt.Printf("%s = %s (type: %s)\n", args[0], vault.Mask(cred.Value), cred.Meta.Type)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			withVault(func(ctx context.Context, v *vault.Vault) error {
				items, err := v.List(ctx)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println("(vault is empty)")
					return nil
				}
				for _, item := range items {
					fmt.Printf("%-32s %-14s %s\n", item.Name, item.Meta.Type, item.Meta.Description)
				}
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withVault(func(ctx context.Context, v *vault.Vault) error {
				if err := v.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}

	genKey := &cobra.Command{
		Use:   "generate-key NAME",
		Short: "Generate an Ed25519 SSH keypair into the vault",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withVault(func(ctx context.Context, v *vault.Vault) error {
				pub, err := v.GenerateSSHKey(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("generated %s; add this public key to the remote host:\n%s\n", args[0], pub)
				return nil
			})
		},
	}

	c.AddCommand(set, get, list, del, genKey)
	return c
}

func withVault(fn func(ctx context.Context, v *vault.Vault) error) {
	rt, err := buildRuntime()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if err := fn(context.Background(), rt.vault); err != nil {
		slog.Error("vault operation failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/storage"
)

// The apikey commands administer keys offline, directly against the
// data directory. Run them while the server is stopped; bbolt holds an
// exclusive file lock.
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage tenant API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new API key for a tenant",
	Long: `Mint a new API key. The raw secret is printed exactly once; only
its hash is stored.

Examples:
  bentham apikey create --tenant acme --name "ci key"
  bentham apikey create --tenant acme --name "scoped" \
    --permissions studies:read --rate-limit 100 --window-ms 60000 \
    --expires 720h`,
	RunE: runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys",
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	apikeyCmd.PersistentFlags().String("data-dir", "./data", "Data directory")

	apikeyCreateCmd.Flags().String("tenant", "", "Tenant ID (required)")
	apikeyCreateCmd.Flags().String("name", "", "Human-readable key name")
	apikeyCreateCmd.Flags().Int("rate-limit", 0, "Requests allowed per window (0 = unlimited)")
	apikeyCreateCmd.Flags().Int64("window-ms", 60000, "Rate limit window in milliseconds")
	apikeyCreateCmd.Flags().StringSlice("permissions", nil, "Permission set (empty = all)")
	apikeyCreateCmd.Flags().Duration("expires", 0, "Lifetime from now (0 = never expires)")
	_ = apikeyCreateCmd.MarkFlagRequired("tenant")

	apikeyListCmd.Flags().String("tenant", "", "Only show keys for this tenant")

	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func openStore(cmd *cobra.Command) (*storage.BoltStore, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database (is the server running?): %w", err)
	}
	return store, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	tenant, _ := cmd.Flags().GetString("tenant")
	name, _ := cmd.Flags().GetString("name")
	rateLimit, _ := cmd.Flags().GetInt("rate-limit")
	windowMs, _ := cmd.Flags().GetInt64("window-ms")
	permissions, _ := cmd.Flags().GetStringSlice("permissions")
	lifetime, _ := cmd.Flags().GetDuration("expires")

	var expiresAt *time.Time
	if lifetime > 0 {
		t := time.Now().Add(lifetime)
		expiresAt = &t
	}

	key, secret, err := auth.Mint(tenant, name, rateLimit, windowMs, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to mint key: %w", err)
	}
	key.Permissions = permissions

	if err := auth.NewKeychain(store).Add(key); err != nil {
		return err
	}

	fmt.Printf("✓ API key created\n")
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Tenant: %s\n", key.TenantID)
	if expiresAt != nil {
		fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	}
	fmt.Printf("\n  Secret: %s\n\n", secret)
	fmt.Println("Store this secret now. It cannot be recovered later.")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	tenant, _ := cmd.Flags().GetString("tenant")
	keys, err := store.ListAPIKeys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	if tenant != "" {
		keys, err = store.ListAPIKeysByTenant(tenant)
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-20s %-10s %s\n", "ID", "TENANT", "NAME", "LIMIT", "EXPIRES")
	for _, key := range keys {
		limit := "none"
		if key.RateLimit > 0 {
			limit = fmt.Sprintf("%d/%ds", key.RateLimit, key.WindowMs/1000)
		}
		expires := "never"
		if key.ExpiresAt != nil {
			expires = key.ExpiresAt.Format(time.RFC3339)
		}
		name := key.Name
		if len(key.Permissions) > 0 {
			name += " [" + strings.Join(key.Permissions, ",") + "]"
		}
		fmt.Printf("%-38s %-12s %-20s %-10s %s\n", key.ID, key.TenantID, name, limit, expires)
	}
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteAPIKey(args[0]); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	fmt.Printf("✓ API key revoked: %s\n", args[0])
	return nil
}

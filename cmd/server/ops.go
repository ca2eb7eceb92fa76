package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"fundledger/internal/auth"
	"fundledger/internal/domain"
	"fundledger/internal/router"

	"github.com/spf13/cobra"
)

var (
	flagTokenSub  string
	flagTokenRole string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := openDB(cfg); err != nil {
			return err
		}
		fmt.Println("  schema up to date")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay every ledger and check it reconciles",
	RunE:  runVerify,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <projectID>",
	Short: "Print the folded state of a project as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshot,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for local testing",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&flagTokenSub, "sub", "", "Actor id (JWT subject)")
	tokenCmd.Flags().StringVar(&flagTokenRole, "role", domain.RoleDonor, "DONOR, APPROVER, ADMIN or PAYMENT")
	rootCmd.AddCommand(migrateCmd, verifyCmd, snapshotCmd, tokenCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	svcs, err := router.NewServices(cfg, db)
	if err != nil {
		return err
	}
	report, err := svcs.Ledger.Verify(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("  Projects: %d\n", report.Projects)
	fmt.Printf("  Entries:  %d\n", report.Entries)
	if report.OK() {
		fmt.Println("  Ledger OK")
		return nil
	}
	for _, p := range report.Problems {
		fmt.Printf("  ! %s\n", p)
	}
	return fmt.Errorf("%d reconciliation problems", len(report.Problems))
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid project id %q", args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	svcs, err := router.NewServices(cfg, db)
	if err != nil {
		return err
	}
	st, err := svcs.Ledger.GetProjectState(cmd.Context(), uint(id))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runToken(_ *cobra.Command, _ []string) error {
	if flagTokenSub == "" {
		return fmt.Errorf("--sub is required")
	}
	switch flagTokenRole {
	case domain.RoleDonor, domain.RoleApprover, domain.RoleAdmin, domain.RolePayment:
	default:
		return fmt.Errorf("unknown role %q", flagTokenRole)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := auth.GenerateAccessToken(&cfg.JWT, flagTokenSub, flagTokenRole)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

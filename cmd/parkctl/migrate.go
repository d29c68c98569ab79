package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"toshima-parking-finder/internal/models"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert items of the flat layout to the current spot layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore(cmd.Context())
			if err != nil {
				return err
			}
			migrated, skipped, err := migrateItems(cmd.Context(), store, a.now(), dryRun)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d items would be migrated, %d skipped\n", migrated, skipped)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Migration completed: %d items migrated, %d skipped\n", migrated, skipped)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}

// migrateItems rewrites every old-schema item. Items that still fail validation after
// migration are left untouched.
func migrateItems(ctx context.Context, store ItemStore, now time.Time, dryRun bool) (int, int, error) {
	log.Printf("Starting data migration...")

	items, err := store.ScanItems(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan items: %w", err)
	}
	if len(items) == 0 {
		log.Printf("No items found to migrate")
		return 0, 0, nil
	}

	var old []models.Item
	for _, item := range items {
		if models.IsOldSchema(item) {
			old = append(old, item)
		}
	}
	log.Printf("Found %d items with old schema", len(old))

	migrated, skipped := 0, 0
	for _, item := range old {
		next := models.MigrateItem(item, now)
		if errs := models.ValidateSchema(next); len(errs) > 0 {
			log.Printf("Validation errors for item %s: %v", item.ID(), errs)
			skipped++
			continue
		}

		if !dryRun {
			if err := store.PutItem(ctx, next); err != nil {
				return migrated, skipped, err
			}
		}
		migrated++
		log.Printf("Migrated item: %s", next.ID())
	}
	return migrated, skipped, nil
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every item against the current spot layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore(cmd.Context())
			if err != nil {
				return err
			}
			return validateItems(cmd.Context(), store, cmd.OutOrStdout())
		},
	}
}

func validateItems(ctx context.Context, store ItemStore, out io.Writer) error {
	items, err := store.ScanItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan items: %w", err)
	}

	total := 0
	for _, item := range items {
		errs := models.ValidateSchema(item)
		if len(errs) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", item.ID(), strings.Join(errs, "; "))
		total += len(errs)
	}

	if total > 0 {
		return fmt.Errorf("found %d validation errors across %d items", total, len(items))
	}
	fmt.Fprintf(out, "All %d items passed validation\n", len(items))
	return nil
}

func newCleanupCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the flat legacy attributes from every item",
		Long: `cleanup permanently deletes the attributes of the first table layout
(total, available, daily_fee, hourly_fee, monthly_fee, bikeTypes).
Run migrate first. Without --yes the command asks for confirmation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cleanup cancelled")
				return nil
			}

			store, err := a.newStore(cmd.Context())
			if err != nil {
				return err
			}
			cleaned, err := cleanupItems(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleanup completed: %d items cleaned\n", cleaned)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Cleanup will permanently delete old fields. Type 'yes' to continue: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}

func cleanupItems(ctx context.Context, store ItemStore) (int, error) {
	log.Printf("Starting cleanup of old fields...")

	items, err := store.ScanItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan items: %w", err)
	}

	cleaned := 0
	for _, item := range items {
		if !models.HasLegacyFields(item) {
			continue
		}
		if err := store.PutItem(ctx, models.StripLegacyFields(item)); err != nil {
			return cleaned, err
		}
		cleaned++
		log.Printf("Cleaned up item: %s", item.ID())
	}
	return cleaned, nil
}

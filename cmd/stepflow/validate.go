package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/loam"
	"github.com/aretw0/stepflow/internal/cli"
	loamAdapter "github.com/aretw0/stepflow/pkg/adapters/loam"
	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:         "validate [catalog]",
	Short:       "Check the catalog for consistency",
	Long:        `Runs the structural, semantic and domain checks on a catalog and reports every finding with its location.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		issues := validateCatalog(cmd.Context(), settings.Catalog)

		out := cmd.OutOrStdout()
		for _, issue := range issues {
			fmt.Fprintf(out, "%-7s %s\n", issue.Severity, issue.Error())
		}
		if err := issues.Err(); err != nil {
			return fmt.Errorf("validation failed: %d error(s)", len(issues.Errors()))
		}
		fmt.Fprintln(out, "Catalog is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateCatalog runs the full pipeline on a YAML file or a Loam repository.
func validateCatalog(ctx context.Context, path string) catalog.Issues {
	if cli.IsCatalogFile(path) {
		_, issues := catalog.ValidateFile(path)
		return issues
	}

	c, err := loadRepository(ctx, path)
	if err != nil {
		return catalog.Issues{{Phase: catalog.PhaseStructural, Message: err.Error(), Severity: catalog.SeverityError}}
	}
	return catalog.Validate(c)
}

// loadRepository reads a catalog directory without building an engine, so that
// invalid catalogs can still be reported in full.
func loadRepository(ctx context.Context, path string) (*catalog.Catalog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(abs, loam.WithStrict(true), loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	loader := loamAdapter.New(loam.NewTypedRepository[loamAdapter.DocumentMetadata](repo))
	return loader.Catalog(ctx)
}

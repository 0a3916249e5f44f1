package main

import (
	"fmt"
	"os"

	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of catalog files",
	Long:  `Prints the JSON Schema that catalog YAML files are validated against. Point your editor at it for completion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := catalog.GenerateJSONSchema()
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			return os.WriteFile(out, append(data, '\n'), 0644)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().StringP("output", "o", "", "Write the schema to a file instead of stdout")
}

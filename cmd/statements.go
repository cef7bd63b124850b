package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/statement"
)

var (
	statementsDir  string
	statementsXLSX bool
)

var statementsCmd = &cobra.Command{
	Use:   "statements",
	Short: "Project generated tables down to bank-statement columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := statementsDir
		if dir == "" {
			if loadErr != nil {
				return loadErr
			}
			dir = cfg.OutputDir
		}

		res, err := statement.Export(dir, statement.Options{
			Workbook: statementsXLSX,
			Logger:   zap.L(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d statement files (%d failed)\n", res.Files, res.Failed)
		if res.Workbook != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Workbook: %s\n", res.Workbook)
		}
		return nil
	},
}

func init() {
	statementsCmd.Flags().StringVar(&statementsDir, "dir", "", "output directory to read (default output_dir from config)")
	statementsCmd.Flags().BoolVar(&statementsXLSX, "xlsx", false, "also write statements.xlsx")
	rootCmd.AddCommand(statementsCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meur/boundlexx/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export [kind...]",
	Short: "Load collections and write them to SQLite",
	Long: `Loads the given collections (all of them when none are named), waits for
every page of each and writes every record to the --db file. Each run is
recorded in the exports table. Records the API sent without an id are
not exported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(args)
		if err != nil {
			return err
		}

		db, err := storage.New(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		st, _, ld := newPipeline()
		if err := ld.LoadAll(cmd.Context(), cfg.Locale, kinds...); err != nil {
			return err
		}

		for _, k := range kinds {
			table, err := st.Table(k)
			if err != nil {
				return err
			}
			warnIncomplete(cmd, table.Status())

			exp, err := db.SaveExport(k, table.Status().Locale, table.Records())
			if err != nil {
				return fmt.Errorf("exporting %s: %w", k, err)
			}
			logger.Info("exported", zap.String("kind", string(k)), zap.String("export", exp.ID), zap.Int("records", exp.RecordCount))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records (%s)\n", k, exp.RecordCount, exp.ID)
		}
		return nil
	},
}

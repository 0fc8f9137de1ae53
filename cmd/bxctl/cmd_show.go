package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/storage"
)

var showCmd = &cobra.Command{
	Use:   "show <kind> [id]",
	Short: "Print exported records from the SQLite file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}

		db, err := storage.New(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if len(args) == 2 {
			r, err := db.GetRecord(kind, args[1])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("%s %s not found", kind, args[1])
			}
			return enc.Encode(r)
		}

		records, err := db.GetRecords(kind)
		if err != nil {
			return err
		}
		return enc.Encode(records)
	},
}

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	impReplace bool
	impList    bool
	impDSN     string
	impVerbose bool
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Copy a dataset file into Postgres (database_url)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}
		dsn := conf.DatabaseURL
		if cmd.Flags().Changed("database-url") {
			dsn = impDSN
		}
		if dsn == "" {
			return fmt.Errorf("no database configured: set database_url or pass --database-url")
		}
		db, err := store.Connect(dsn, impVerbose)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if impList {
			m, err := store.Datasets(cmd.Context(), db)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(m))
			for n := range m {
				names = append(names, n)
			}
			sort.Strings(names)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Dataset", "Rows"})
			for _, n := range names {
				table.Append([]string{n, strconv.FormatInt(m[n], 10)})
			}
			table.Render()
			return nil
		}

		path := conf.DatasetPath
		if len(args) == 1 {
			path = args[0]
		}
		ds, err := dataset.Load(path, dataset.Options{SheetName: conf.DatasetSheet})
		if err != nil {
			return err
		}
		n, err := store.Import(cmd.Context(), db, ds, impReplace)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Imported %d records from %s as dataset '%s'\n", n, path, ds.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&impReplace, "replace", false, "delete earlier rows of the same dataset first")
	importCmd.Flags().BoolVar(&impList, "list", false, "list stored datasets instead of importing")
	importCmd.Flags().StringVar(&impDSN, "database-url", "", "Postgres DSN (overrides config)")
	importCmd.Flags().BoolVar(&impVerbose, "verbose", false, "log SQL statements")
}

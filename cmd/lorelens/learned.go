package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/character/pgstore"
	"github.com/MrWong99/lorelens/internal/character/sqlitestore"
	"github.com/MrWong99/lorelens/internal/config"
)

func newLearnedCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learned",
		Short: "Inspect speaker names learned from play sessions",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List persisted learned names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLearnedList(cmd.Context(), v, cmd.OutOrStdout(), asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(list)
	return cmd
}

func runLearnedList(ctx context.Context, v *viper.Viper, out io.Writer, asJSON bool) error {
	cfg, _, err := loadConfig(v)
	if err != nil {
		return err
	}
	store, err := openLearned(ctx, cfg.Learned)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.List(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		if names == nil {
			names = []character.LearnedName{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tCONFIDENCE\tOBSERVATIONS\tPROMOTED")
	for _, n := range names {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n", n.Name, n.Role, n.Confidence, n.Observations, n.PromotedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// openLearned opens the persistent store named by lc. The memory backend
// holds nothing outside a running server.
func openLearned(ctx context.Context, lc config.LearnedConfig) (character.LearnedStore, error) {
	switch lc.Backend {
	case config.LearnedSQLite:
		return sqlitestore.Open(ctx, lc.DSN)
	case config.LearnedPostgres:
		return pgstore.Connect(ctx, lc.DSN)
	default:
		return character.NewMemLearnedStore(), nil
	}
}

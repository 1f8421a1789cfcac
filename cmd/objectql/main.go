// objectql is a command-line client for the query engine: run queries,
// inspect plans, or explore the demo schema against the mock driver.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/driver"
	"github.com/guileen/objectql/engine"
	"github.com/guileen/objectql/security"
	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

var (
	flagUser      string
	flagRoles     []string
	flagDialect   string
	flagDSN       string
	flagNoRLS     bool
	flagTerritory []string
)

func main() {
	root := &cobra.Command{
		Use:   "objectql",
		Short: "DSQL query engine client",
	}
	root.PersistentFlags().StringVar(&flagUser, "user", "demo-user", "user id for the security context")
	root.PersistentFlags().StringSliceVar(&flagRoles, "role", nil, "roles for the security context")
	root.PersistentFlags().StringSliceVar(&flagTerritory, "territory", nil, "territory ids for the security context")
	root.PersistentFlags().StringVar(&flagDialect, "dialect", string(sqlgen.Postgres), "sql dialect (postgres, sqlserver, mock)")
	root.PersistentFlags().StringVar(&flagDSN, "dsn", "", "postgres connection string (mock driver when empty)")
	root.PersistentFlags().BoolVar(&flagNoRLS, "no-rls", false, "disable row-level security")

	root.AddCommand(queryCmd(), explainCmd(), sqlCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <dsql>",
		Short: "Execute a DSQL query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result := eng.Execute(cmd.Context(), strings.Join(args, " "))
			return printJSON(result)
		},
	}
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <dsql>",
		Short: "Show the execution plan for a DSQL query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := eng.Explain(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(plan)
		},
	}
}

func sqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sql <dsql>",
		Short: "Print the generated SQL without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			registry := catalog.NewDemoRegistry()
			plan, err := eng.Explain(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			stmt, err := sqlgen.New(registry, sqlgen.Dialect(flagDialect)).Generate(plan)
			if err != nil {
				return err
			}
			fmt.Println(stmt.SQL)
			for _, p := range stmt.Params {
				fmt.Printf("  @%s = %v\n", p.Name, p.Value)
			}
			return nil
		},
	}
}

func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	config := engine.LoadConfig()
	config.Dialect = sqlgen.Dialect(flagDialect)
	if flagNoRLS {
		config.EnableRLS = false
	}

	registry := catalog.NewDemoRegistry()
	provider := &security.StaticProvider{Context: types.SecurityContext{
		UserID:       flagUser,
		Roles:        flagRoles,
		TerritoryIDs: flagTerritory,
	}}

	cleanup := func() {}
	var drv driver.Driver
	if flagDSN != "" {
		pg, err := driver.NewPGXDriver(ctx, flagDSN)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pg.Close
		drv = pg
	} else {
		drv = &driver.MockDriver{}
	}

	eng := engine.New(config, registry, registry, drv, provider)
	prev := cleanup
	cleanup = func() {
		eng.Close()
		prev()
	}
	return eng, cleanup, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

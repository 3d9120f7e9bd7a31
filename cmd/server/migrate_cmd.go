package main

import (
	"github.com/spf13/cobra"

	"github.com/jciecuador/workspace-console/migrations"
	"github.com/jciecuador/workspace-console/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(*cobra.Command, []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			return migrations.Up(conf.Database.ConnectionString())
		},
	}
}

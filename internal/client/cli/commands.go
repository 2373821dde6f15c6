package cli

import (
	"github.com/spf13/cobra"
)

// Command builds the root command with every subcommand attached.
func (c *Cli) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "coursesync",
		Short: "Offline-first course data synchronization client",
		Long: `coursesync keeps a local operation log of course data changes and
exchanges it with the sync server whenever a connection is available.

Local changes never wait for the network: they are written to the local
database immediately and queued for the next sync cycle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "Path to config file (default: ./coursesync.yaml)")
	flags.String("db", "", "Path to local database")
	flags.String("server", "", "Sync server URL")
	flags.String("device", "", "Device id (generated on first start when empty)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	// ошибки BindPFlag возможны только при nil флаге
	_ = c.v.BindPFlag("db_path", flags.Lookup("db"))
	_ = c.v.BindPFlag("server_url", flags.Lookup("server"))
	_ = c.v.BindPFlag("device_id", flags.Lookup("device"))
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "data", Title: "Local data:"},
		&cobra.Group{ID: "audit", Title: "Audit and maintenance:"},
	)

	root.AddCommand(
		c.runCommand(),
		c.syncCommand(),
		c.statusCommand(),
		c.appendCommand(),
		c.deleteCommand(),
		c.getCommand(),
		c.listCommand(),
		c.conflictsCommand(),
		c.quarantineCommand(),
		c.compactCommand(),
		c.versionCommand(),
	)

	return root
}

func (c *Cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c.io.Printf("coursesync client\n")
			c.io.Printf("Version:    %s\n", c.build.Version)
			c.io.Printf("Build Date: %s\n", c.build.BuildDate)
			c.io.Printf("Git Commit: %s\n", c.build.GitCommit)
		},
	}
}

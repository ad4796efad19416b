package cli

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

// Migrator is the subset of *migrate.Migrate the migrate commands use.
type Migrator interface {
	Up() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// MigratorOpener connects a Migrator for one command invocation.
type MigratorOpener func() (Migrator, error)

// NewMigrateCommand builds `migrate up|down|version`.
func NewMigrateCommand(open MigratorOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "migrate all the way up",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m Migrator) error {
					err := m.Up()
					if errors.Is(err, migrate.ErrNoChange) {
						_, err = fmt.Fprintln(cmd.OutOrStdout(), "no change")
						return err
					}
					if err != nil {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m Migrator) error {
					if err := m.Steps(-1); err != nil {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "print the applied version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(open, func(m Migrator) error {
					return printVersion(cmd, m)
				})
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "version=none")
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
	return err
}

func withMigrator(open MigratorOpener, fn func(Migrator) error) error {
	m, err := open()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

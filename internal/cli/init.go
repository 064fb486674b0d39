package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/harness"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Users string // YAML file with a users list
}

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Database     string `json:"database"`
	UsersCreated int    `json:"users_created"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database",
		Long: `Create the database schema, or migrate an existing database to the
current version. With --users, the users of the given YAML file are
seeded; users that already exist are left untouched.`,
		Example: `  # Create the database of the config
  notestream init

  # Create a database and seed users
  notestream init --db ./stream.db --users users.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Users, "users", "", "YAML file with users to seed")

	return cmd
}

func runInit(cmd *cobra.Command, opts *InitOptions) error {
	formatter := opts.formatter(cmd)

	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	result := InitResult{Database: env.cfg.Database.Path}
	if opts.Users != "" {
		batch, err := harness.LoadBatch(opts.Users)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load users", err)
		}
		result.UsersCreated, err = harness.SeedUsers(cmd.Context(), env.store, batch.Users, true)
		if err != nil {
			return formatter.Fail("failed to seed users", err)
		}
		formatter.VerboseLog("Seeded %d of %d users", result.UsersCreated, len(batch.Users))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("Initialized %s (%d users created)", result.Database, result.UsersCreated))
}

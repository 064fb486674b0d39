package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/domain"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}
	var userID string

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the SQL of a user's stream",
		Long: `Compile the stream query of a user without running it and print the
branches of the union with the generated SQL and its arguments.`,
		Example:       `  notestream explain --user u1 --filter posts`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, opts, userID)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user whose stream to explain (required)")
	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (default the --user)")
	_ = cmd.MarkFlagRequired("user")
	addStreamFlags(cmd, opts)

	return cmd
}

func runExplain(cmd *cobra.Command, opts *StreamOptions, userID string) error {
	formatter := opts.formatter(cmd)

	p, err := opts.params()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	as := opts.As
	if as == "" {
		as = userID
	}
	var actor *domain.User
	if actor, err = env.actor(cmd.Context(), as); err != nil {
		return formatter.Fail("failed to resolve acting user", err)
	}

	explain, err := env.engine.ExplainUserStream(cmd.Context(), actor, userID, p)
	if err != nil {
		return formatter.Fail("failed to compile stream", err)
	}

	if opts.Format == "json" {
		return formatter.Success(explain)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "Branches (%d):\n", len(explain.Branches))
	for _, b := range explain.Branches {
		fmt.Fprintf(w, "  - %s\n", b)
	}
	fmt.Fprintf(w, "\nSQL:\n%s\n\nArgs: %v\n", explain.SQL, explain.Args)
	return nil
}

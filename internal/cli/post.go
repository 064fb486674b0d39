package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/harness"
	"github.com/roach88/notestream/internal/projector"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	As       string
	Parent   string // Type/ID; empty for a top-level post
	Text     string
	Users    []string
	Teams    []string
	Portals  []string
	Global   bool
	Internal bool
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Write a post",
		Long: `Write a post about an entity (--parent Type/ID) or a top-level post
addressed to users, teams, portals or everyone (--global). Posting to
an entity needs stream access to it; the entity's followers see it.`,
		Example: `  # Post about an account
  notestream post --as u1 --parent Account/a1 --text "call scheduled"

  # Address a team
  notestream post --as admin --teams t1 --text "standup moved"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (required)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "entity to post about, as Type/ID")
	cmd.Flags().StringVar(&opts.Text, "text", "", "post text (required)")
	cmd.Flags().StringSliceVar(&opts.Users, "users", nil, "addressed user IDs")
	cmd.Flags().StringSliceVar(&opts.Teams, "teams", nil, "addressed team IDs")
	cmd.Flags().StringSliceVar(&opts.Portals, "portals", nil, "addressed portal IDs")
	cmd.Flags().BoolVar(&opts.Global, "global", false, "address everyone")
	cmd.Flags().BoolVar(&opts.Internal, "internal", false, "hide from portal users")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func runPost(cmd *cobra.Command, opts *PostOptions) error {
	formatter := opts.formatter(cmd)

	var parentType, parentID string
	if opts.Parent != "" {
		var ok bool
		parentType, parentID, ok = strings.Cut(opts.Parent, "/")
		if !ok || parentType == "" || parentID == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --parent %q: want Type/ID", opts.Parent))
		}
	}

	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	actor, err := env.actor(ctx, opts.As)
	if err != nil {
		return formatter.Fail("failed to resolve acting user", err)
	}

	out, err := env.engine.Post(ctx, actor, parentType, parentID, projector.PostInput{
		Text:       opts.Text,
		UsersIDs:   opts.Users,
		TeamsIDs:   opts.Teams,
		PortalsIDs: opts.Portals,
		IsGlobal:   opts.Global,
		IsInternal: opts.Internal,
	})
	if err != nil {
		return formatter.Fail("post rejected", err)
	}

	if opts.Format == "json" {
		return formatter.Success(out.Notes)
	}
	for _, n := range out.Notes {
		fmt.Fprintf(formatter.Writer, "#%d %s\n", n.Number, harness.NoteLabel(n))
	}
	return nil
}

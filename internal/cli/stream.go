package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/composer"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/harness"
)

// StreamOptions holds the flags shared by the stream commands.
type StreamOptions struct {
	*RootOptions
	As      string // Acting user; defaults per command
	Offset  int
	MaxSize int
	Filter  string // "posts" | "updates"
	After   string // RFC3339
	SkipOwn bool
	Text    string
	Named   string
}

func addStreamFlags(cmd *cobra.Command, opts *StreamOptions) {
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of notes to skip")
	cmd.Flags().IntVar(&opts.MaxSize, "max-size", 0, "page size (0 means the configured limit)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "note filter (posts|updates)")
	cmd.Flags().StringVar(&opts.After, "after", "", "only notes created after this RFC3339 time")
	cmd.Flags().BoolVar(&opts.SkipOwn, "skip-own", false, "skip notes created by the acting user")
	cmd.Flags().StringVar(&opts.Text, "text", "", "match post text")
	cmd.Flags().StringVar(&opts.Named, "named", "", "named filter (mine|emails|internal)")
}

// params converts the flags into composer parameters.
func (o *StreamOptions) params() (composer.Params, error) {
	p := composer.Params{
		Offset:  o.Offset,
		MaxSize: o.MaxSize,
		Filter:  o.Filter,
		SkipOwn: o.SkipOwn,
	}
	if o.After != "" {
		after, err := time.Parse(time.RFC3339, o.After)
		if err != nil {
			return p, fmt.Errorf("invalid --after %q: %w", o.After, err)
		}
		p.After = &after
	}
	if o.Text != "" || o.Named != "" {
		p.Search = &composer.Search{Text: o.Text, Named: o.Named}
	}
	return p, nil
}

// NewStreamCommand creates the stream command.
func NewStreamCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}
	var userID string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Show a user's stream",
		Long: `Show the notes a user may see, newest first: notes of followed
entities, notes addressed to the user, their teams or portals, global
posts and notes the user wrote. The stream is read as --as, which
defaults to the user.`,
		Example: `  # Show the stream of u1
  notestream stream --user u1

  # Second page of posts only
  notestream stream --user u1 --filter posts --offset 20 --max-size 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			as := opts.As
			if as == "" {
				as = userID
			}
			return runStream(cmd, opts, as, func(env *env, actor *domain.User, p composer.Params) (composer.Page, error) {
				return env.engine.UserStream(cmd.Context(), actor, userID, p)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user whose stream to show (required)")
	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (default the --user)")
	_ = cmd.MarkFlagRequired("user")
	addStreamFlags(cmd, opts)

	return cmd
}

// NewEntityStreamCommand creates the entity-stream command.
func NewEntityStreamCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entity-stream <Type> <id>",
		Short: "Show an entity's stream",
		Long: `Show the notes of one entity, including notes of its children that
roll up to it, newest first. The acting user needs stream access to the
entity; the notes are further limited by the user's access rules.`,
		Example: `  # Show the stream of an account as u1
  notestream entity-stream Account a1 --as u1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, opts, opts.As, func(env *env, actor *domain.User, p composer.Params) (composer.Page, error) {
				return env.engine.EntityStream(cmd.Context(), actor, args[0], args[1], p)
			})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", domain.SystemUserID, "acting user")
	addStreamFlags(cmd, opts)

	return cmd
}

type streamFunc func(env *env, actor *domain.User, p composer.Params) (composer.Page, error)

func runStream(cmd *cobra.Command, opts *StreamOptions, as string, fetch streamFunc) error {
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

	actor, err := env.actor(cmd.Context(), as)
	if err != nil {
		return formatter.Fail("failed to resolve acting user", err)
	}

	page, err := fetch(env, actor, p)
	if err != nil {
		return formatter.Fail("failed to read stream", err)
	}

	if opts.Format == "json" {
		return formatter.Success(page)
	}
	writePage(formatter.Writer, page)
	return nil
}

func writePage(w io.Writer, page composer.Page) {
	if len(page.List) == 0 {
		fmt.Fprintln(w, "No notes.")
	}
	for i := range page.List {
		n := &page.List[i]
		fmt.Fprintf(w, "#%-5d %s  %-12s %s\n",
			n.Number,
			n.CreatedAt.UTC().Format(time.RFC3339),
			n.CreatedByID,
			harness.NoteLabel(n),
		)
	}

	var footer []string
	if page.Total >= 0 {
		footer = append(footer, fmt.Sprintf("total: %d", page.Total))
	}
	if page.HasMore {
		footer = append(footer, "more available")
	}
	if len(footer) > 0 {
		fmt.Fprintf(w, "\n(%s)\n", strings.Join(footer, ", "))
	}
}

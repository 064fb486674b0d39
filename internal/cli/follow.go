package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/domain"
)

// FollowOptions holds flags for the follow and unfollow commands.
type FollowOptions struct {
	*RootOptions
	As   string // Acting user
	User string // Follower; empty means the acting user
}

// FollowResult is the JSON payload of the follow and unfollow commands.
type FollowResult struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	UserID     string `json:"user_id"`
	Changed    bool   `json:"changed"`
}

type followFunc func(ctx context.Context, env *env, actor *domain.User, entityType, id, userID string) (bool, error)

// NewFollowCommand creates the follow command.
func NewFollowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FollowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "follow <Type> <id>",
		Short: "Follow an entity",
		Long: `Make a user follow an entity so its notes appear in the user's
stream. The follower must be active and have stream access to the
entity. Following on behalf of another user needs user permission.`,
		Example: `  notestream follow Account a1 --as u1
  notestream follow Case k1 --as admin --user u2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollow(cmd, opts, args[0], args[1], "followed", func(ctx context.Context, env *env, actor *domain.User, entityType, id, userID string) (bool, error) {
				return env.engine.Follow(ctx, actor, entityType, id, userID)
			})
		},
	}
	addFollowFlags(cmd, opts)

	return cmd
}

// NewUnfollowCommand creates the unfollow command.
func NewUnfollowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FollowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "unfollow <Type> <id>",
		Short:         "Stop following an entity",
		Example:       `  notestream unfollow Account a1 --as u1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollow(cmd, opts, args[0], args[1], "unfollowed", func(ctx context.Context, env *env, actor *domain.User, entityType, id, userID string) (bool, error) {
				return env.engine.Unfollow(ctx, actor, entityType, id, userID)
			})
		},
	}
	addFollowFlags(cmd, opts)

	return cmd
}

func addFollowFlags(cmd *cobra.Command, opts *FollowOptions) {
	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (required)")
	cmd.Flags().StringVar(&opts.User, "user", "", "follower (default the acting user)")
	_ = cmd.MarkFlagRequired("as")
}

func runFollow(cmd *cobra.Command, opts *FollowOptions, entityType, id, verb string, fn followFunc) error {
	formatter := opts.formatter(cmd)

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

	changed, err := fn(ctx, env, actor, entityType, id, opts.User)
	if err != nil {
		return formatter.Fail(fmt.Sprintf("%s/%s not %s", entityType, id, verb), err)
	}

	result := FollowResult{EntityType: entityType, EntityID: id, UserID: opts.User, Changed: changed}
	if result.UserID == "" {
		result.UserID = actor.ID
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	if !changed {
		return formatter.Success(fmt.Sprintf("%s/%s: nothing changed for %s", entityType, id, result.UserID))
	}
	return formatter.Success(fmt.Sprintf("%s %s %s/%s", result.UserID, verb, entityType, id))
}

// FollowersOptions holds flags for the followers command.
type FollowersOptions struct {
	*RootOptions
	As     string
	Offset int
	Limit  int
}

// NewFollowersCommand creates the followers command.
func NewFollowersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FollowersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "followers <Type> <id>",
		Short: "List the followers of an entity",
		Long: `List the active followers of an entity, the acting user first, then
by name. The acting user needs stream access to the entity.`,
		Example:       `  notestream followers Account a1 --as u1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowers(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", domain.SystemUserID, "acting user")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of followers to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (0 means the configured limit)")

	return cmd
}

func runFollowers(cmd *cobra.Command, opts *FollowersOptions, entityType, id string) error {
	formatter := opts.formatter(cmd)

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

	page, err := env.engine.Followers(ctx, actor, entityType, id, opts.Offset, opts.Limit)
	if err != nil {
		return formatter.Fail("failed to list followers", err)
	}

	if opts.Format == "json" {
		return formatter.Success(page)
	}
	w := formatter.Writer
	for _, f := range page.List {
		fmt.Fprintf(w, "%-12s %s\n", f.ID, f.Name)
	}
	fmt.Fprintf(w, "\n(total: %d)\n", page.Total)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/skystats/internal/app"
	"github.com/blackmichael/skystats/internal/domain"
)

var followsCmd = &cobra.Command{
	Use:   "follows <handle|did>",
	Short: "List the accounts an account follows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return profilesAction(cmd, args[0], "follows")
	},
}

var followersCmd = &cobra.Command{
	Use:   "followers <handle|did>",
	Short: "List the followers of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return profilesAction(cmd, args[0], "followers")
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search posts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchAction,
}

var feedCmd = &cobra.Command{
	Use:   "feed <at-uri>",
	Short: "List the posts of a feed generator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postsAction(cmd, func(ctx context.Context, a *app.App, limit int) ([]domain.FeedItem, string, error) {
			return a.Service.Feed(ctx, args[0], limit)
		})
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List the home timeline of the logged in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return postsAction(cmd, func(ctx context.Context, a *app.App, limit int) ([]domain.FeedItem, string, error) {
			return a.Service.Timeline(ctx, limit)
		})
	},
}

func profilesAction(cmd *cobra.Command, actor, key string) error {
	ctx, done, a, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	fetch := a.Service.Follows
	if key == "followers" {
		fetch = a.Service.Followers
	}
	profiles, cursor, err := fetch(ctx, actor, limitOr(cfg.DefaultLimit))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{key: profiles, "cursor": cursor})
	}
	for _, p := range profiles {
		if p.DisplayName != "" {
			fmt.Fprintf(out, "@%s\t%s\t%s\n", p.Handle, p.DisplayName, p.DID)
		} else {
			fmt.Fprintf(out, "@%s\t%s\n", p.Handle, p.DID)
		}
	}
	return nil
}

func searchAction(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return postsAction(cmd, func(ctx context.Context, a *app.App, limit int) ([]domain.FeedItem, string, error) {
		return a.Service.Search(ctx, query, limit)
	})
}

func postsAction(cmd *cobra.Command, fetch func(ctx context.Context, a *app.App, limit int) ([]domain.FeedItem, string, error)) error {
	ctx, done, a, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	posts, cursor, err := fetch(ctx, a, limitOr(cfg.DefaultLimit))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{"posts": posts, "cursor": cursor})
	}
	for _, item := range posts {
		fmt.Fprintf(out, "@%s  %s\n  %s\n", item.Post.Author.Handle, item.Post.URI, oneLine(item.Post.Text))
	}
	return nil
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sujalbistaa/karmafeed/internal/api"
	"github.com/sujalbistaa/karmafeed/internal/compose"
	"github.com/sujalbistaa/karmafeed/internal/config"
	"github.com/sujalbistaa/karmafeed/internal/db"
	"github.com/sujalbistaa/karmafeed/internal/feed"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// maxScanPages bounds how far like/comment commands page to find a post.
const maxScanPages = 20

// cli holds per-invocation state. remote and drafts are built from the
// config unless already set.
type cli struct {
	out        io.Writer
	configPath string
	verbose    bool

	cfg    config.Config
	remote api.Collaborator
	drafts *db.DraftStore
	engine *feed.Engine
	actor  models.UserRef
}

func newRootCmd(c *cli) *cobra.Command {
	var (
		page      int
		parentID  int64
		watch     bool
		watchStop time.Duration
	)

	rootCmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Browse and act on the community feed from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log engine activity to stderr")

	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPosts(cmd.Context(), page)
		},
	}
	postsCmd.Flags().IntVar(&page, "page", 1, "number of pages to load")

	postCmd := &cobra.Command{
		Use:   "post <content>",
		Short: "Publish a new post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPost(cmd.Context(), strings.Join(args, " "))
		},
	}

	commentCmd := &cobra.Command{
		Use:   "comment <post-id> <content>",
		Short: "Comment on a post, or reply to a comment with --parent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post-id", args[0])
			if err != nil {
				return err
			}
			var parent *int64
			if cmd.Flags().Changed("parent") {
				parent = &parentID
			}
			return c.runComment(cmd.Context(), postID, parent, strings.Join(args[1:], " "))
		},
	}
	commentCmd.Flags().Int64Var(&parentID, "parent", 0, "id of the comment to reply to")

	likeCmd := &cobra.Command{
		Use:   "like <post-id>",
		Short: "Toggle your like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post-id", args[0])
			if err != nil {
				return err
			}
			return c.runLikePost(cmd.Context(), postID)
		},
	}

	likeCommentCmd := &cobra.Command{
		Use:   "like-comment <post-id> <comment-id>",
		Short: "Toggle your like on a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post-id", args[0])
			if err != nil {
				return err
			}
			commentID, err := parseID("comment-id", args[1])
			if err != nil {
				return err
			}
			return c.runLikeComment(cmd.Context(), postID, commentID)
		},
	}

	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by karma over the last 24 hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return c.runWatchLeaderboard(cmd.Context(), watchStop)
			}
			return c.runLeaderboard(cmd.Context())
		},
	}
	leaderboardCmd.Flags().BoolVar(&watch, "watch", false, "keep refreshing until interrupted")
	leaderboardCmd.Flags().DurationVar(&watchStop, "for", 0, "stop watching after this long (0 = until interrupted)")

	draftsCmd := &cobra.Command{
		Use:   "drafts",
		Short: "List input kept from failed submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDrafts(cmd.Context())
		},
	}

	rootCmd.AddCommand(postsCmd, postCmd, commentCmd, likeCmd, likeCommentCmd, leaderboardCmd, draftsCmd)
	return rootCmd
}

func (c *cli) setup() error {
	c.close()
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if c.remote == nil {
		c.remote = api.NewClient(cfg.APIBaseURL,
			api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			api.WithRateLimit(cfg.ClientRPS, cfg.ClientBurst),
			api.WithLogger(logger),
		)
	}
	if c.drafts == nil {
		database, err := db.Init(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := db.Migrate(database); err != nil {
			return err
		}
		c.drafts = db.NewDraftStore(database)
	}

	c.actor = models.UserRef{ID: cfg.UserID, Username: cfg.Username}
	c.engine = feed.New(c.remote, feed.Options{
		Viewer:              c.actor,
		MaxReplyDepth:       cfg.MaxReplyDepth,
		LeaderboardInterval: cfg.LeaderboardInterval,
		Composer:            compose.NewComposer(c.drafts, cfg.MaxContentLength, logger),
		Logger:              logger,
	})
	return nil
}

// close stops the engine built by setup. cobra skips post-run hooks when a
// command fails, so callers release it after Execute returns.
func (c *cli) close() {
	if c.engine != nil {
		c.engine.Stop()
		c.engine = nil
	}
}

// execute runs the command tree with args and releases the engine.
func (c *cli) execute(ctx context.Context, args []string) error {
	defer c.close()
	cmd := newRootCmd(c)
	if args != nil {
		cmd.SetArgs(args)
	}
	return cmd.ExecuteContext(ctx)
}

func (c *cli) runPosts(ctx context.Context, pages int) error {
	if _, err := c.engine.Refresh(ctx); err != nil {
		return err
	}
	for i := 1; i < pages; i++ {
		loaded, err := c.engine.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !loaded {
			break
		}
	}
	for _, p := range c.engine.Posts() {
		c.printPost(p)
	}
	if !c.engine.FeedState().HasMore {
		fmt.Fprintln(c.out, "-- end of feed --")
	}
	return nil
}

func (c *cli) printPost(p models.Post) {
	liked := " "
	if p.IsLiked {
		liked = "*"
	}
	fmt.Fprintf(c.out, "#%d %s @%s  %s%d likes  %d comments\n", p.ID, p.CreatedAt.Format(time.DateTime), p.Author.Username, liked, p.LikeCount, p.CommentCount)
	fmt.Fprintf(c.out, "    %s\n", p.Content)
	c.printComments(p.Comments, 1)
}

func (c *cli) printComments(comments []models.Comment, depth int) {
	indent := strings.Repeat("    ", depth+1)
	for _, cm := range comments {
		fmt.Fprintf(c.out, "%s[%d] @%s (%d likes): %s\n", indent, cm.ID, cm.Author.Username, cm.LikeCount, cm.Content)
		c.printComments(cm.Replies, depth+1)
	}
}

func (c *cli) runPost(ctx context.Context, content string) error {
	created, err := c.engine.SubmitPost(ctx, c.actor, content)
	if err != nil {
		return c.submitError(err)
	}
	fmt.Fprintf(c.out, "posted #%d\n", created.ID)
	return nil
}

func (c *cli) runComment(ctx context.Context, postID int64, parent *int64, content string) error {
	if err := c.findPost(ctx, postID); err != nil {
		return err
	}
	created, err := c.engine.SubmitComment(ctx, c.actor, postID, parent, content)
	if err != nil {
		return c.submitError(err)
	}
	fmt.Fprintf(c.out, "commented [%d] on #%d\n", created.ID, postID)
	return nil
}

func (c *cli) submitError(err error) error {
	if errors.Is(err, compose.ErrSubmitFailed) {
		return fmt.Errorf("%w (your text was saved, see `feedctl drafts`)", err)
	}
	return err
}

func (c *cli) runLikePost(ctx context.Context, postID int64) error {
	if err := c.findPost(ctx, postID); err != nil {
		return err
	}
	outcome, state, err := c.engine.LikePost(ctx, c.actor, postID)
	c.printLike(fmt.Sprintf("#%d", postID), outcome, state)
	return err
}

func (c *cli) runLikeComment(ctx context.Context, postID, commentID int64) error {
	if err := c.findPost(ctx, postID); err != nil {
		return err
	}
	outcome, state, err := c.engine.LikeComment(ctx, c.actor, postID, commentID)
	c.printLike(fmt.Sprintf("[%d]", commentID), outcome, state)
	return err
}

func (c *cli) printLike(target string, outcome feed.Outcome, state feed.LikeState) {
	verb := "unliked"
	if state.Liked {
		verb = "liked"
	}
	switch outcome {
	case feed.OutcomeCommitted:
		fmt.Fprintf(c.out, "%s %s, %d likes\n", verb, target, state.Count)
	case feed.OutcomeRolledBack:
		fmt.Fprintf(c.out, "could not update %s, still %d likes\n", target, state.Count)
	}
}

// findPost pages through the feed until postID is held.
func (c *cli) findPost(ctx context.Context, postID int64) error {
	if _, err := c.engine.Refresh(ctx); err != nil {
		return err
	}
	for i := 0; i < maxScanPages; i++ {
		if _, ok := c.engine.Post(postID); ok {
			return nil
		}
		loaded, err := c.engine.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !loaded {
			break
		}
	}
	if _, ok := c.engine.Post(postID); ok {
		return nil
	}
	return fmt.Errorf("post #%d: %w", postID, feed.ErrPostNotLoaded)
}

func (c *cli) runLeaderboard(ctx context.Context) error {
	if err := c.engine.RefreshLeaderboard(ctx); err != nil {
		return err
	}
	c.printLeaderboard(c.engine.Leaderboard())
	return nil
}

// runWatchLeaderboard mounts the engine and reprints the board whenever
// its timestamp moves.
func (c *cli) runWatchLeaderboard(ctx context.Context, limit time.Duration) error {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	if err := c.engine.Start(ctx); err != nil {
		fmt.Fprintf(c.out, "feed unavailable: %v\n", err)
	}

	var last time.Time
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		state := c.engine.Leaderboard()
		if !state.UpdatedAt.IsZero() && !state.UpdatedAt.Equal(last) {
			last = state.UpdatedAt
			c.printLeaderboard(state)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *cli) printLeaderboard(state feed.LeaderboardState) {
	period := state.Period
	if period == "" {
		period = "24 hours"
	}
	fmt.Fprintf(c.out, "Top karma, last %s (updated %s)\n", period, state.UpdatedAt.Format(time.TimeOnly))
	if len(state.Entries) == 0 {
		fmt.Fprintln(c.out, "  no activity yet")
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for i, e := range state.Entries {
		fmt.Fprintf(tw, "  %d.\t@%s\t%d\n", i+1, e.Username, e.Karma24h)
	}
	tw.Flush()
	if state.Err != nil {
		fmt.Fprintf(c.out, "  (last refresh failed: %v)\n", state.Err)
	}
}

func (c *cli) runDrafts(ctx context.Context) error {
	drafts, err := c.drafts.ListDrafts(ctx, c.actor.ID)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		fmt.Fprintln(c.out, "no drafts")
		return nil
	}
	for _, d := range drafts {
		fmt.Fprintf(c.out, "%s  %s  %q", d.UpdatedAt.Format(time.DateTime), d.Target, d.Content)
		if d.LastError != "" {
			fmt.Fprintf(c.out, "  (%s)", d.LastError)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/skystats/internal/domain"
)

var continueReport bool

var reportCmd = &cobra.Command{
	Use:   "report <handle|did>",
	Short: "Compute the statistics report of an account",
	Long:  "Compute the statistics report of an account. With --continue the author feed is read from where the last archived report stopped.",
	Args:  cobra.ExactArgs(1),
	RunE:  reportAction,
}

func init() {
	reportCmd.Flags().BoolVar(&continueReport, "continue", false, "resume the author feed at the cursor saved by the last report")
}

func reportAction(cmd *cobra.Command, args []string) error {
	ctx, done, a, _, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	generate := a.Service.Generate
	if continueReport {
		generate = a.Service.Continue
	}
	r, err := generate(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), r)
	}
	printReport(cmd.OutOrStdout(), r)
	return nil
}

// printReport writes a terminal summary of r.
func printReport(w io.Writer, r *domain.Report) {
	handle := ""
	if r.User != nil {
		handle = r.User.Handle
	}
	fmt.Fprintf(w, "%s (@%s)\n\n", r.Basic.Name, handle)

	fmt.Fprintf(w, "Followers %d  Following %d  Posts %d\n",
		r.Basic.FollowersCount, r.Basic.FollowingCount, r.Basic.PostsCount)
	fmt.Fprintf(w, "Likes %d  Replies %d  Reposts %d  Quotes %d\n",
		r.Totals.Likes, r.Totals.Replies, r.Totals.Reposts, r.Totals.Quotes)

	pt := r.PostTypes
	fmt.Fprintf(w, "Post types: standalone %d (%s)  reply %d (%s)  repost %d (%s)\n",
		pt.Counts.Standalone, percent(pt.Percentages.Standalone),
		pt.Counts.Reply, percent(pt.Percentages.Reply),
		pt.Counts.Repost, percent(pt.Percentages.Repost))

	ct := r.ContentTypes
	fmt.Fprintf(w, "Content: text %d  image %d  video %d  link %d  quote %d\n",
		ct.Counts.Text, ct.Counts.Image, ct.Counts.Video, ct.Counts.Link, ct.Counts.Quote)

	fmt.Fprintf(w, "Most active: %s around %02d:00\n",
		time.Weekday(r.Activity.MostActiveDay), r.Activity.MostActiveHour)

	if r.SignUp.Date != nil {
		fmt.Fprintf(w, "Signed up %s (%d days ago)\n", r.SignUp.Date.Format(time.DateOnly), *r.SignUp.DaysSince)
	}
	fmt.Fprintf(w, "Per day: posts %s  likes %s   Per post: likes %s  replies %s\n",
		decimal(r.Averages.PostsPerDay), decimal(r.Averages.LikesPerDay),
		decimal(r.Averages.LikesPerPost), decimal(r.Averages.RepliesPerPost))

	if r.Sentiments.Compound != nil {
		fmt.Fprintf(w, "Sentiment: compound %.3f  positive %.3f  neutral %.3f  negative %.3f\n",
			*r.Sentiments.Compound, *r.Sentiments.Positive, *r.Sentiments.Neutral, *r.Sentiments.Negative)
	}

	if r.BestPost != nil {
		fmt.Fprintf(w, "\nBest post (%d interactions): %s\n", r.BestPost.InteractionCount, r.BestPost.Post.URI)
		if text := strings.TrimSpace(r.BestPost.Post.Text); text != "" {
			fmt.Fprintf(w, "  %s\n", text)
		}
	}

	if len(r.BiggestFans) > 0 {
		fmt.Fprintln(w, "\nBiggest fans:")
		for _, f := range r.BiggestFans {
			fmt.Fprintf(w, "  %3d  @%s\n", f.Likes, f.Actor.Handle)
		}
	}

	if words := r.Words.MostCommonWords; len(words) > 0 {
		n := min(len(words), 10)
		parts := make([]string, n)
		for i, wc := range words[:n] {
			parts[i] = fmt.Sprintf("%s (%d)", wc.Word, wc.Count)
		}
		fmt.Fprintf(w, "\nTop words: %s\n", strings.Join(parts, ", "))
	}

	if r.DIDInfo != nil {
		fmt.Fprintf(w, "\nDID %s hosted on %s\n", r.DIDInfo.DID, r.DIDInfo.PDS)
	}
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func decimal(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

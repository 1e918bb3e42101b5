package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity <handle|did>",
	Short: "Resolve the DID document and operation history of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  identityAction,
}

var historyCmd = &cobra.Command{
	Use:   "history <handle|did>",
	Short: "List archived reports of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  historyAction,
}

var historyCursor string

func init() {
	historyCmd.Flags().StringVar(&historyCursor, "cursor", "", "resume listing after this cursor")
}

func identityAction(cmd *cobra.Command, args []string) error {
	ctx, done, a, _, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	info, err := a.Service.Identity(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, info)
	}

	fmt.Fprintf(out, "DID:    %s\n", info.DID)
	fmt.Fprintf(out, "Method: %s\n", info.Method)
	if info.DIDDomain != "" {
		fmt.Fprintf(out, "Domain: %s\n", info.DIDDomain)
	}
	fmt.Fprintf(out, "PDS:    %s\n", info.PDS)
	if info.Document != nil {
		for _, aka := range info.Document.AlsoKnownAs {
			fmt.Fprintf(out, "AKA:    %s\n", aka)
		}
	}
	if len(info.Audit) > 0 {
		fmt.Fprintf(out, "\nOperations (%d):\n", len(info.Audit))
		for _, e := range info.Audit {
			flag := ""
			if e.Nullified {
				flag = " (nullified)"
			}
			fmt.Fprintf(out, "  %s  %s%s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Operation.Kind(), flag)
		}
	}
	return nil
}

func historyAction(cmd *cobra.Command, args []string) error {
	ctx, done, a, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	summaries, cursor, err := a.Service.History(ctx, args[0], limitOr(cfg.DefaultLimit), historyCursor)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{"reports": summaries, "cursor": cursor})
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "%s  %s  @%s  %d posts\n",
			s.GeneratedAt.UTC().Format(time.RFC3339), s.ID, s.Handle, s.PostsAnalyzed)
	}
	if cursor != "" {
		fmt.Fprintf(out, "next: --cursor %s\n", cursor)
	}
	return nil
}

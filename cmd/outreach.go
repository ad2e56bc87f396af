package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/output"
	"github.com/joescharf/btcmap-triage/internal/store"
)

var (
	outreachChannel string
	outreachText    string
	outreachState   string
	outreachBody    bool
)

var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Manage merchant outreach messages and replies",
	Long: `Outreach messages are drafted during Phase 2 and stored until the
merchant answers. Send drafts by hand, then record the reply here so the
waiting triage run (or the next one) can score it.`,
}

var outreachListCmd = &cobra.Command{
	Use:   "list <submission-id>",
	Short: "List outreach messages for a submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return outreachListRun(cmd.Context(), args[0])
	},
}

var outreachReplyCmd = &cobra.Command{
	Use:   "reply <submission-id>",
	Short: "Record a merchant's reply",
	Long: `Record the reply a merchant sent on a channel. Without --state the reply
text is classified when the triage run reads it; with --state the given
answer is used as is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return outreachReplyRun(cmd.Context(), args[0])
	},
}

func init() {
	outreachListCmd.Flags().BoolVar(&outreachBody, "body", false, "Print the drafted message bodies")

	outreachReplyCmd.Flags().StringVar(&outreachChannel, "channel", string(models.ChannelEmail), "Channel the reply came in on: email, social_dm")
	outreachReplyCmd.Flags().StringVarP(&outreachText, "text", "t", "", "Reply text")
	outreachReplyCmd.Flags().StringVar(&outreachState, "state", "", "Reviewer reading of the reply: confirmed, denied, no_response")
	_ = outreachReplyCmd.MarkFlagRequired("text")

	outreachCmd.AddCommand(outreachListCmd)
	outreachCmd.AddCommand(outreachReplyCmd)
	rootCmd.AddCommand(outreachCmd)
}

func outreachListRun(ctx context.Context, submissionID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	msgs, err := s.ListOutreach(ctx, submissionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		ui.Info("No outreach messages for %s", submissionID)
		return nil
	}

	table := ui.Table([]string{"Channel", "Recipient", "Status", "Reply", "Created"})
	for _, m := range msgs {
		reply := m.Reply
		if m.ReplyState != "" {
			reply = fmt.Sprintf("[%s] %s", m.ReplyState, reply)
		}
		table.Append([]string{
			string(m.Channel),
			m.Recipient,
			messageStatusColor(m.Status),
			truncate(reply, 60),
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()

	if outreachBody {
		for _, m := range msgs {
			fmt.Fprintln(ui.Out)
			fmt.Fprintf(ui.Out, "%s to %s\n", output.Cyan(string(m.Channel)), m.Recipient)
			if m.Subject != "" {
				fmt.Fprintf(ui.Out, "Subject: %s\n", m.Subject)
			}
			fmt.Fprintln(ui.Out, m.Body)
		}
	}
	return nil
}

func outreachReplyRun(ctx context.Context, submissionID string) error {
	ch := models.Channel(outreachChannel)
	if ch != models.ChannelEmail && ch != models.ChannelSocialDM {
		return fmt.Errorf("unknown channel %q (want email or social_dm)", outreachChannel)
	}
	state := models.OutreachState(outreachState)
	switch state {
	case "", models.OutreachConfirmed, models.OutreachDenied, models.OutreachNoResponse:
	default:
		return fmt.Errorf("unknown state %q (want confirmed, denied or no_response)", outreachState)
	}
	if strings.TrimSpace(outreachText) == "" {
		return errors.New("reply text is empty")
	}

	if dryRun {
		ui.DryRunMsg("Would record %s reply for %s", ch, submissionID)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	msg, err := s.RecordOutreachReply(ctx, submissionID, ch, outreachText, state)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no %s outreach message for %s", ch, submissionID)
	}
	if err != nil {
		return err
	}
	ui.Success("Recorded %s reply for %s (message %s)", ch, submissionID, msg.ID)
	return nil
}

func messageStatusColor(s models.OutreachMessageStatus) string {
	switch s {
	case models.MessageReplied:
		return output.Green(string(s))
	case models.MessageSent:
		return output.Cyan(string(s))
	default:
		return output.Yellow(string(s))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

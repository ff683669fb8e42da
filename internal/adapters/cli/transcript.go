package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-coach/internal/app/transcript"
	"github.com/PabloGalante/farum-coach/internal/app/wiring"
	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/domain"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

var (
	listLimit      int
	showLimit      int
	journalLimit   int
	transcriptRaw  bool
	transcriptUser string
	transcriptWhen string
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Browse stored sessions and act on their cards",
	Long: `Browse stored sessions and act on their cards.

Uses the configured storage backend, so point it at sqlite or firestore:
  FARUM_STORAGE_BACKEND=sqlite farum transcript list --user u1`,
}

var transcriptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's sessions",
	Args:  cobra.NoArgs,
	RunE:  runTranscriptList,
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's messages and cards",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptShow,
}

var transcriptActCmd = &cobra.Command{
	Use:   "act <session-id> <message-id> <type> <index> <action>",
	Short: "Apply a card action (accept, reject, schedule, dismiss, answer)",
	Long: `Apply a card action the way the UI does.

Backend calls use dev_auth_token from the config.

Examples:
  farum transcript act S1 M2 commitmentDetected 0 accept --user u1
  farum transcript act S1 M2 sessionSuggestion 0 schedule --user u1 --when "friday 10am"`,
	Args: cobra.ExactArgs(5),
	RunE: runTranscriptAct,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List a user's journal entries",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func init() {
	rootCmd.AddCommand(transcriptCmd, journalCmd)
	transcriptCmd.AddCommand(transcriptListCmd, transcriptShowCmd, transcriptActCmd)

	transcriptListCmd.Flags().StringVar(&transcriptUser, "user", "", "User id")
	_ = transcriptListCmd.MarkFlagRequired("user")
	transcriptListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of sessions to display")

	transcriptShowCmd.Flags().IntVar(&showLimit, "limit", 0, "Show only the last N messages (0 = all)")
	transcriptShowCmd.Flags().BoolVar(&transcriptRaw, "raw", false, "Print raw content with tokens")

	transcriptActCmd.Flags().StringVar(&transcriptUser, "user", "", "User id")
	_ = transcriptActCmd.MarkFlagRequired("user")
	transcriptActCmd.Flags().StringVar(&transcriptWhen, "when", "", "Requested date for schedule, e.g. 2024-05-03T09:00:00Z or \"tomorrow 9am\"")

	journalCmd.Flags().StringVar(&transcriptUser, "user", "", "User id")
	_ = journalCmd.MarkFlagRequired("user")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "Maximum number of entries to display")
}

func openContainer(cmd *cobra.Command) (*wiring.Container, error) {
	cfg, err := loadConfig(cmd, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	c, err := wiring.Build(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return c, nil
}

func runTranscriptList(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	sessions, err := c.Conversation.ListSessions(cmd.Context(), domain.UserID(transcriptUser), listLimit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions found for user: %s\n", transcriptUser)
		return nil
	}

	fmt.Fprintf(out, "Showing %d session(s)\n\n", len(sessions))
	for i, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "[%d] %s\n", i+1, s.ID)
		fmt.Fprintf(out, "    %s · %s · updated %s\n", title, s.PreferredMode, humanize.Time(s.UpdatedAt))
	}
	return nil
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	session, msgs, err := c.Conversation.GetSessionTimeline(cmd.Context(), domain.SessionID(args[0]), showLimit)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (%s), started %s\n\n", session.ID, session.PreferredMode, humanize.Time(session.CreatedAt))
	for _, m := range msgs {
		printMessage(out, m, transcriptRaw)
	}
	return nil
}

func printMessage(w io.Writer, m *domain.Message, raw bool) {
	fmt.Fprintf(w, "── %s · %s · %s\n", m.Author, m.ID, humanize.Time(m.CreatedAt))

	text := m.Content
	if m.HasCards() && !raw {
		text = tokens.DisplayText(m.Content)
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "   %s\n", line)
	}

	if !m.HasCards() {
		fmt.Fprintln(w)
		return
	}
	for _, c := range cards.MaterializeAll(string(m.ID), m.Content) {
		printCard(w, c, "•")
	}
	for _, c := range cards.MaterializeCompletion(string(m.ID), m.Content) {
		printCard(w, c, "◦")
	}
	fmt.Fprintln(w)
}

func printCard(w io.Writer, c cards.Card, bullet string) {
	line := fmt.Sprintf("   %s %s #%d", bullet, c.Type, c.Key.Index)
	if state := c.State(); state != "" {
		line += " [" + state + "]"
	}
	if len(c.Slots) > 0 {
		slots := make([]string, 0, len(c.Slots))
		for _, s := range c.Slots {
			slots = append(slots, string(s))
		}
		line += " (" + strings.Join(slots, ", ") + ")"
	}
	fmt.Fprintln(w, line)
}

func runTranscriptAct(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[3])
	if err != nil || index < 0 {
		return fmt.Errorf("invalid index %q", args[3])
	}

	c, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	a := transcript.CardAction{
		UserID:    domain.UserID(transcriptUser),
		SessionID: domain.SessionID(args[0]),
		MessageID: domain.MessageID(args[1]),
		Index:     index,
	}
	msg, err := c.Transcripts.Act(cmd.Context(), a, args[2], args[4], transcriptWhen)
	if err != nil {
		return err
	}

	card, ok := cards.Find(cards.MaterializeAll(string(msg.ID), msg.Content),
		cards.Key{MessageID: string(msg.ID), Type: args[2], Index: index})
	if !ok {
		return domain.ErrCardNotFound
	}
	printCard(cmd.OutOrStdout(), card, "•")
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	entries, err := c.Journal.GetUserJournal(cmd.Context(), domain.UserID(transcriptUser), journalLimit)
	if err != nil {
		return fmt.Errorf("failed to load journal: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No journal entries for user: %s\n", transcriptUser)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s · %s\n", e.Title, humanize.Time(e.CreatedAt))
		if e.Summary != "" {
			fmt.Fprintf(out, "   %s\n", e.Summary)
		}
		for _, a := range e.ActionPlan {
			fmt.Fprintf(out, "   - %s [%s]\n", a.Description, a.Status)
		}
	}
	return nil
}

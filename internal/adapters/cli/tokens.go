package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-coach/internal/cards"
	"github.com/PabloGalante/farum-coach/internal/tokens"
)

var (
	tokensOutput    string
	tokensMessageID string
	mutateSet       []string
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Inspect card tokens in a coach reply",
	Long: `Parse, render and rewrite the [type:key="value"] tokens carried by coach replies.

The reply is read from the arguments or, when none are given, from stdin.

Examples:
  farum tokens parse 'Try this. [focus:focus="Sleep"]'
  cat reply.txt | farum tokens cards -o yaml
  farum tokens mutate commitmentDetected 0 accepted --set commitmentId=cmt_0123456789abcdef < reply.txt`,
}

var tokensParseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "List the tokens in the message body",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), tokensOutput, tokens.Parse(text))
	},
}

var tokensDisplayCmd = &cobra.Command{
	Use:   "display [text]",
	Short: "Print the text a chat bubble shows",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tokens.DisplayText(text))
		return err
	},
}

var tokensCardsCmd = &cobra.Command{
	Use:   "cards [text]",
	Short: "Materialize the body tokens into cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), tokensOutput, cards.MaterializeAll(tokensMessageID, text))
	},
}

type completionOutput struct {
	Found      bool              `json:"found" yaml:"found"`
	Completion tokens.Completion `json:"completion" yaml:"completion"`
	Cards      []cards.Card      `json:"cards" yaml:"cards"`
}

var tokensCompletionCmd = &cobra.Command{
	Use:   "completion [text]",
	Short: "Show the completion block and its cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		c := tokens.ExtractCompletion(text)
		return writeOutput(cmd.OutOrStdout(), tokensOutput, completionOutput{
			Found:      c.Found(),
			Completion: c,
			Cards:      cards.MaterializeCompletion(tokensMessageID, text),
		})
	},
}

var tokensMutateCmd = &cobra.Command{
	Use:   "mutate <type> <index> <state> [text]",
	Short: "Set the state of one token occurrence",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 0 {
			return fmt.Errorf("invalid index %q", args[1])
		}

		extra := make([]tokens.Pair, 0, len(mutateSet))
		for _, kv := range mutateSet {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid --set %q (want key=value)", kv)
			}
			extra = append(extra, tokens.Pair{Key: k, Value: v})
		}

		text, err := readInput(cmd, args[3:])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), tokens.Mutate(text, args[0], index, args[2], extra...))
		return err
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensParseCmd, tokensDisplayCmd, tokensCardsCmd, tokensCompletionCmd, tokensMutateCmd)

	tokensCmd.PersistentFlags().StringVarP(&tokensOutput, "output", "o", outputJSON, "Output format: json or yaml")
	tokensCmd.PersistentFlags().StringVar(&tokensMessageID, "message-id", "stdin", "Message id used in card keys")
	tokensMutateCmd.Flags().StringArrayVar(&mutateSet, "set", nil, "Extra property to write, as key=value (repeatable)")
}

// readInput joins args, or reads stdin when there are none.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

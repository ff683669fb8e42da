package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-coach/internal/app/conversation"
	"github.com/PabloGalante/farum-coach/internal/app/wiring"
	"github.com/PabloGalante/farum-coach/internal/config"
	"github.com/PabloGalante/farum-coach/internal/domain"
)

// run executes the root command with fresh flag values.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	configPath, logLevel = "", "error"
	tokensOutput, tokensMessageID, mutateSet = outputJSON, "stdin", nil
	transcriptUser, transcriptWhen, transcriptRaw = "", "", false
	listLimit, showLimit, journalLimit = 20, 0, 20

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokensDisplay(t *testing.T) {
	out, err := run(t, "", "tokens", "display", `Try this. [focus:focus="Sleep"]`)
	require.NoError(t, err)
	assert.Equal(t, "Try this.\n", out)
}

func TestTokensParseFromStdin(t *testing.T) {
	out, err := run(t, `Hi [focus:focus="Sleep"] [checkin:question="Rested?"]`, "tokens", "parse")
	require.NoError(t, err)

	var toks []struct {
		Type  string            `json:"type"`
		Index int               `json:"index"`
		Props map[string]string `json:"props"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &toks))
	require.Len(t, toks, 2)
	assert.Equal(t, "checkin", toks[1].Type)
	assert.Equal(t, "Rested?", toks[1].Props["question"])
}

func TestTokensCardsYAML(t *testing.T) {
	out, err := run(t, `[commitmentDetected:title="Walk",type="daily"]`,
		"tokens", "cards", "-o", "yaml", "--message-id", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "key: m1/commitmentDetected/0")
	assert.Contains(t, out, "state: none")
	assert.Contains(t, out, "- accept")
}

func TestTokensCompletion(t *testing.T) {
	out, err := run(t, `Bye. [finish-start][sessionEnd:title="Wrap up"][finish-end]`, "tokens", "completion")
	require.NoError(t, err)

	var got struct {
		Found bool `json:"found"`
		Cards []struct {
			Type string `json:"type"`
		} `json:"cards"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Found)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "sessionEnd", got.Cards[0].Type)
}

func TestTokensMutate(t *testing.T) {
	out, err := run(t, "", "tokens", "mutate", "commitmentDetected", "0", "accepted",
		"--set", "commitmentId=cmt_0123456789abcdef0123",
		`Ok [commitmentDetected:title="Walk"]`)
	require.NoError(t, err)
	assert.Equal(t, `Ok [commitmentDetected:title="Walk",state="accepted",commitmentId="cmt_0123456789abcdef0123"]`, out)

	_, err = run(t, "", "tokens", "mutate", "commitmentDetected", "x", "accepted", "text")
	require.Error(t, err)

	_, err = run(t, "", "tokens", "mutate", "commitmentDetected", "0", "accepted", "--set", "novalue", "text")
	require.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := run(t, "", "tokens", "parse", "-o", "xml", "hi")
	require.Error(t, err)
}

func writeConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	for _, k := range []string{
		"FARUM_MODE", "FARUM_STORAGE_BACKEND", "FARUM_SQLITE_PATH", "FARUM_USE_MOCK_LLM",
		"FARUM_DEV_AUTH_TOKEN", "FARUM_LOG_LEVEL", "FARUM_CONFIG",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `storage_backend = "sqlite"
sqlite_path = "` + filepath.ToSlash(filepath.Join(dir, "farum.db")) + `"
use_mock_llm = true
dev_auth_token = "dev"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	return path, cfg
}

func TestTranscriptCommands(t *testing.T) {
	ctx := context.Background()
	path, cfg := writeConfig(t)

	c, err := wiring.Build(ctx, cfg)
	require.NoError(t, err)
	start, err := c.Conversation.StartSession(ctx, conversation.StartSessionInput{
		UserID:        "u1",
		PreferredMode: domain.ModeActionPlan,
		Title:         "Habits",
	})
	require.NoError(t, err)
	reply, err := c.Conversation.SendMessage(ctx, conversation.SendMessageInput{
		SessionID: start.Session.ID,
		UserID:    "u1",
		Text:      "walk more",
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	sid, mid := string(start.Session.ID), string(reply.AgentMessage.ID)

	out, err := run(t, "", "--config", path, "transcript", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, sid)
	assert.Contains(t, out, "Habits")

	out, err = run(t, "", "--config", path, "transcript", "show", sid)
	require.NoError(t, err)
	assert.Contains(t, out, "commitmentDetected #0 [none] (accept, reject)")
	assert.NotContains(t, out, "[commitmentDetected:")

	out, err = run(t, "", "--config", path, "transcript", "act", sid, mid, "commitmentDetected", "0", "accept", "--user", "u1")
	require.NoError(t, err)
	assert.Equal(t, "   • commitmentDetected #0 [accepted]\n", out)

	_, err = run(t, "", "--config", path, "transcript", "act", sid, mid, "commitmentDetected", "0", "accept", "--user", "u1")
	require.ErrorIs(t, err, domain.ErrAlreadyConfirmed)

	out, err = run(t, "", "--config", path, "journal", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "No journal entries")
}

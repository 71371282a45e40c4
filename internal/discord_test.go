package internal

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// Routes the interaction callback endpoint at a local server for the duration
// of a test. The endpoint builders in discordgo are package-level vars, so
// tests can point them somewhere reachable.
func stubInteractionEndpoint(t *testing.T, status int, body string) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	orig := discordgo.EndpointInteractionResponse
	discordgo.EndpointInteractionResponse = func(iID, iToken string) string {
		return server.URL + "/interactions/" + iID + "/" + iToken + "/callback"
	}
	t.Cleanup(func() { discordgo.EndpointInteractionResponse = orig })
}

func testInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{ID: "1", AppID: "app-1", Token: "tok"},
	}
}

func TestDeferReply_LogsRespondFailure(t *testing.T) {
	stubInteractionEndpoint(t, http.StatusBadRequest, `{"message":"Interaction has already been acknowledged","code":40060}`)

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	bot := &DiscordBot{logger: newCapturingLogger(&buf)}

	bot.deferReply(session, testInteraction())

	out := buf.String()
	if !strings.Contains(out, "interaction_defer_failed") {
		t.Errorf("expected a warning about the failed defer, got %q", out)
	}
	if !strings.Contains(out, `"component":"discord"`) {
		t.Errorf("expected the discord component tag, got %q", out)
	}
}

func TestDeferReply_QuietOnSuccess(t *testing.T) {
	stubInteractionEndpoint(t, http.StatusNoContent, "")

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	bot := &DiscordBot{logger: newCapturingLogger(&buf)}

	bot.deferReply(session, testInteraction())

	if buf.Len() != 0 {
		t.Errorf("expected no log output on a successful defer, got %q", buf.String())
	}
}

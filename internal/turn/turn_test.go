package turn

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Sami9889/grook/agent"
	"github.com/Sami9889/grook/internal/slackapi"
	"github.com/Sami9889/grook/internal/threadctx"
	"github.com/Sami9889/grook/llm"
	"github.com/Sami9889/grook/tools"
)

const (
	botID     = "U0BOT000000"
	creatorID = "U0CREATOR00"
	allowedCh = "C0ALLOWED00"
)

type posted struct {
	Channel  string
	Text     string
	ThreadTS string
}

type fakeSlack struct {
	// replySets is consumed one per ThreadReplies call; the last set
	// repeats once exhausted.
	replySets  [][]slackapi.ThreadMessage
	replyCalls int
	reactions  []slackapi.Reaction

	posted     []posted
	ephemerals []string
	left       []string
}

func (s *fakeSlack) PostMessage(_ context.Context, channel, text, threadTS string, _ bool) (string, error) {
	s.posted = append(s.posted, posted{channel, text, threadTS})
	return "900.0", nil
}

func (s *fakeSlack) PostEphemeral(_ context.Context, _, user, text string) error {
	s.ephemerals = append(s.ephemerals, user+": "+text)
	return nil
}

func (s *fakeSlack) LeaveChannel(_ context.Context, channel string) error {
	s.left = append(s.left, channel)
	return nil
}

func (s *fakeSlack) ThreadReplies(context.Context, string, string) ([]slackapi.ThreadMessage, error) {
	idx := s.replyCalls
	if idx >= len(s.replySets) {
		idx = len(s.replySets) - 1
	}
	s.replyCalls++
	if idx < 0 {
		return nil, fmt.Errorf("no scripted replies")
	}
	return s.replySets[idx], nil
}

func (s *fakeSlack) MessageReactions(context.Context, string, string) ([]slackapi.Reaction, error) {
	return s.reactions, nil
}

type fakeBuilder struct{ builds int }

func (b *fakeBuilder) Build(_ context.Context, replies []slackapi.ThreadMessage, channelID string) (threadctx.Context, error) {
	b.builds++
	conv := make([]llm.Message, len(replies))
	for i, r := range replies {
		conv[i] = llm.Message{Role: llm.RoleUser, Content: r.Text}
	}
	return threadctx.Context{Conversation: conv, DirectoryNote: "Relevant IDs (U = User, C/D = Channel):\n"}, nil
}

type fakeAgent struct {
	result agent.TurnResult
	err    error
	runs   int
	scope  tools.Scope
}

func (a *fakeAgent) Run(_ context.Context, _ []llm.Message, _ string, scope tools.Scope, _, _ string) (agent.TurnResult, error) {
	a.runs++
	a.scope = scope
	return a.result, a.err
}

func newController(t *testing.T, api *fakeSlack, agentLoop *fakeAgent) *Controller {
	t.Helper()
	c, err := NewController(api, &fakeBuilder{}, agentLoop, Config{
		BotID:           botID,
		CreatorID:       creatorID,
		AllowedChannels: []string{allowedCh},
	}, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func helloEvent() Event {
	return Event{Channel: allowedCh, TS: "100.0", User: "U1ABCDEF012", Text: "hello"}
}

func helloThread() []slackapi.ThreadMessage {
	return []slackapi.ThreadMessage{{TS: "100.0", User: "U1ABCDEF012", Text: "hello"}}
}

func TestHandleHappyPath(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{helloThread()}}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "hi there"}}
	c := newController(t, api, agentLoop)

	if err := c.Handle(context.Background(), helloEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 1 {
		t.Fatalf("agent ran %d times want 1", agentLoop.runs)
	}
	if len(api.posted) != 1 || api.posted[0].Text != "hi there" || api.posted[0].ThreadTS != "100.0" {
		t.Fatalf("unexpected delivery: %+v", api.posted)
	}
	want := tools.Scope{ChannelID: allowedCh, ThreadTS: "100.0", MessageTS: "100.0", UserID: "U1ABCDEF012"}
	if agentLoop.scope != want {
		t.Fatalf("got scope %+v want %+v", agentLoop.scope, want)
	}
}

func TestHandleStaleThreadSendsNothing(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{
		helloThread(),
		{
			{TS: "100.0", User: "U1ABCDEF012", Text: "hello"},
			{TS: "150.0", User: "U2OTHER0000", Text: "something new"},
		},
	}}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "stale reply"}}
	c := newController(t, api, agentLoop)

	if err := c.Handle(context.Background(), helloEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 1 {
		t.Fatal("agent should still have run")
	}
	if len(api.posted) != 0 {
		t.Fatalf("stale turn must send nothing, got %+v", api.posted)
	}
}

func TestHandleLastMessageFromBotAborts(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{{
		{TS: "100.0", User: "U1ABCDEF012", Text: "hello"},
		{TS: "101.0", User: botID, Text: "already answered"},
	}}}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "double"}}
	c := newController(t, api, agentLoop)

	if err := c.Handle(context.Background(), helloEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 || len(api.posted) != 0 {
		t.Fatalf("turn must abort before agent: runs=%d posted=%+v", agentLoop.runs, api.posted)
	}
}

func TestHandleBotReactionAborts(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{
		replySets: [][]slackapi.ThreadMessage{helloThread()},
		reactions: []slackapi.Reaction{{Name: "eyes", Users: []string{"U2OTHER0000", botID}}},
	}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "late"}}
	c := newController(t, api, agentLoop)

	if err := c.Handle(context.Background(), helloEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 || len(api.posted) != 0 {
		t.Fatalf("turn must abort on bot reaction: runs=%d posted=%+v", agentLoop.runs, api.posted)
	}
}

func TestHandleDisallowedChannel(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	agentLoop := &fakeAgent{}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Channel = "C9FORBIDDEN"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 {
		t.Fatal("no model invocation may occur")
	}
	if len(api.ephemerals) != 1 || !strings.Contains(api.ephemerals[0], "<@"+creatorID+">") {
		t.Fatalf("expected one ephemeral naming the creator, got %v", api.ephemerals)
	}
	if len(api.left) != 1 || api.left[0] != "C9FORBIDDEN" {
		t.Fatalf("expected to leave the channel, got %v", api.left)
	}
}

func TestHandleDisallowedChannelSubtypedIsSilent(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	c := newController(t, api, &fakeAgent{})

	ev := helloEvent()
	ev.Channel = "C9FORBIDDEN"
	ev.Subtype = "channel_join"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(api.ephemerals) != 0 || len(api.left) != 0 {
		t.Fatalf("subtyped events must be ignored silently: %v %v", api.ephemerals, api.left)
	}
}

func TestHandleDMChannelAllowed(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{helloThread()}}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "hi"}}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Channel = "D1ABCDEF012"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 1 {
		t.Fatal("DM channels are always allowed")
	}
}

func TestHandleIgnoresBotAuthoredEvents(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	agentLoop := &fakeAgent{}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.BotID = "B0SOMEBOT00"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ev = helloEvent()
	ev.User = botID
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 || api.replyCalls != 0 {
		t.Fatal("bot-authored events must be ignored before any fetch")
	}
}

func TestHandleIgnoresUnhandledSubtype(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	agentLoop := &fakeAgent{}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Subtype = "message_changed"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 || api.replyCalls != 0 {
		t.Fatal("unhandled subtypes must be ignored")
	}
}

func TestHandleChannelJoinRepliesTopLevel(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{{
		{TS: "100.0", User: "U1ABCDEF012", Subtype: "channel_join", Text: "joined"},
	}}}
	agentLoop := &fakeAgent{result: agent.TurnResult{Text: "welcome!"}}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Subtype = "channel_join"
	ev.Text = "joined"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(api.posted) != 1 || api.posted[0].ThreadTS != "" {
		t.Fatalf("join reply must be top-level: %+v", api.posted)
	}
}

func TestHandleSkippedAndEmptyResultsSendNothing(t *testing.T) {
	t.Parallel()

	for _, result := range []agent.TurnResult{{Skipped: true}, {Text: "  "}} {
		api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{helloThread()}}
		c := newController(t, api, &fakeAgent{result: result})
		if err := c.Handle(context.Background(), helloEvent()); err != nil {
			t.Fatalf("Handle(%+v): %v", result, err)
		}
		if len(api.posted) != 0 {
			t.Fatalf("result %+v must send nothing, got %+v", result, api.posted)
		}
	}
}

func TestHandleCreatorFastPath(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	agentLoop := &fakeAgent{}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Text = "Hey, who made you?"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agentLoop.runs != 0 {
		t.Fatal("creator question must not reach the model")
	}
	if len(api.posted) != 1 || !strings.Contains(api.posted[0].Text, "Made with") {
		t.Fatalf("credits not posted: %+v", api.posted)
	}
}

func TestHandleCreatorFastPathBeatsChannelGate(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{}
	agentLoop := &fakeAgent{}
	c := newController(t, api, agentLoop)

	ev := helloEvent()
	ev.Channel = "C9FORBIDDEN"
	ev.Text = "who created you?"
	if err := c.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(api.posted) != 1 || !strings.Contains(api.posted[0].Text, "Made with") {
		t.Fatalf("credits not posted: %+v", api.posted)
	}
	if len(api.ephemerals) != 0 || len(api.left) != 0 {
		t.Fatalf("credits question must not trigger the channel gate: %v %v", api.ephemerals, api.left)
	}
	if agentLoop.runs != 0 {
		t.Fatal("creator question must not reach the model")
	}
}

func TestHandleMultilineDeliverySkipsBlanks(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{helloThread()}}
	c := newController(t, api, &fakeAgent{result: agent.TurnResult{Text: "one\n\ntwo\nthree"}})

	if err := c.Handle(context.Background(), helloEvent()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(api.posted) != 3 {
		t.Fatalf("got %d messages want 3", len(api.posted))
	}
	if api.posted[0].Text != "one" || api.posted[1].Text != "two" || api.posted[2].Text != "three" {
		t.Fatalf("unexpected lines: %+v", api.posted)
	}
}

func TestHandleAgentErrorIsFatal(t *testing.T) {
	t.Parallel()

	api := &fakeSlack{replySets: [][]slackapi.ThreadMessage{helloThread()}}
	c := newController(t, api, &fakeAgent{err: fmt.Errorf("model unreachable")})

	if err := c.Handle(context.Background(), helloEvent()); err == nil {
		t.Fatal("expected error")
	}
	if len(api.posted) != 0 {
		t.Fatalf("failed turn must send nothing, got %+v", api.posted)
	}
}

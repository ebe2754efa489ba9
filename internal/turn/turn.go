// Package turn orchestrates one inbound Slack message event: gating,
// freshness checks around the agent run and delivery of the final text.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sami9889/grook/agent"
	"github.com/Sami9889/grook/internal/slackapi"
	"github.com/Sami9889/grook/internal/threadctx"
	"github.com/Sami9889/grook/llm"
	"github.com/Sami9889/grook/tools"
)

const creditsText = "Made with 💜 by @2wiceUponATime (https://github.com/2wiceUponATime), Sami Singh (@Sami9889 - https://github.com/Sami9889/), and Gabe Schrock"

// Event is one inbound Slack message event, subtype preserved.
type Event struct {
	Channel  string
	TS       string
	ThreadTS string
	User     string
	BotID    string
	Subtype  string
	Text     string
}

// SlackAPI is the transport surface the controller itself needs.
type SlackAPI interface {
	PostMessage(ctx context.Context, channel, text, threadTS string, broadcast bool) (string, error)
	PostEphemeral(ctx context.Context, channel, user, text string) error
	LeaveChannel(ctx context.Context, channel string) error
	ThreadReplies(ctx context.Context, channel, ts string) ([]slackapi.ThreadMessage, error)
	MessageReactions(ctx context.Context, channel, ts string) ([]slackapi.Reaction, error)
}

// ContextBuilder prepares the model input from a fetched thread.
type ContextBuilder interface {
	Build(ctx context.Context, replies []slackapi.ThreadMessage, channelID string) (threadctx.Context, error)
}

// Agent runs the model/tool loop for one turn.
type Agent interface {
	Run(ctx context.Context, conversation []llm.Message, directoryNote string, scope tools.Scope, botID, creatorID string) (agent.TurnResult, error)
}

type Config struct {
	BotID           string
	CreatorID       string
	AllowedChannels []string
	// TurnTimeout bounds one whole turn including model calls. Zero means
	// no deadline.
	TurnTimeout time.Duration
}

type Controller struct {
	api     SlackAPI
	builder ContextBuilder
	agent   Agent
	cfg     Config
	allowed map[string]bool
	log     *slog.Logger
}

func NewController(api SlackAPI, builder ContextBuilder, agentLoop Agent, cfg Config, log *slog.Logger) (*Controller, error) {
	if api == nil || builder == nil || agentLoop == nil {
		return nil, fmt.Errorf("api, builder and agent are required")
	}
	if cfg.BotID == "" {
		return nil, fmt.Errorf("bot id is required")
	}
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.AllowedChannels))
	for _, ch := range cfg.AllowedChannels {
		ch = strings.ToUpper(strings.TrimSpace(ch))
		if ch != "" {
			allowed[ch] = true
		}
	}
	return &Controller{api: api, builder: builder, agent: agentLoop, cfg: cfg, allowed: allowed, log: log}, nil
}

// Handle processes one event end to end. Gated events return nil; only
// failures that abort a turn that should have run return an error.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	if c.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TurnTimeout)
		defer cancel()
	}
	log := c.log.With("channel", ev.Channel, "ts", ev.TS)

	if ev.BotID != "" || ev.User == c.cfg.BotID {
		log.Debug("ignore_bot_message")
		return nil
	}

	// Credits questions are answered everywhere, even in channels the bot
	// would otherwise leave.
	if c.creatorFastPath(ctx, ev, log) {
		return nil
	}

	if !c.channelAllowed(ev.Channel) {
		return c.rejectChannel(ctx, ev, log)
	}

	threadTS, ok := c.threadFor(ev)
	if !ok {
		log.Debug("ignore_subtype", "subtype", ev.Subtype)
		return nil
	}

	rootTS := ev.TS
	if ev.ThreadTS != "" {
		rootTS = ev.ThreadTS
	}
	replies, err := c.api.ThreadReplies(ctx, ev.Channel, rootTS)
	if err != nil {
		return fmt.Errorf("fetch thread: %w", err)
	}
	if len(replies) > 0 && replies[len(replies)-1].User == c.cfg.BotID {
		log.Info("turn_canceled", "reason", "last message from bot")
		return nil
	}
	reacted, err := c.botAlreadyReacted(ctx, ev)
	if err != nil {
		log.Warn("reactions_check_failed", "error", err)
	} else if reacted {
		log.Info("turn_canceled", "reason", "reaction from bot")
		return nil
	}

	built, err := c.builder.Build(ctx, replies, ev.Channel)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	scope := tools.Scope{ChannelID: ev.Channel, ThreadTS: threadTS, MessageTS: ev.TS, UserID: ev.User}
	result, err := c.agent.Run(ctx, built.Conversation, built.DirectoryNote, scope, c.cfg.BotID, c.cfg.CreatorID)
	if err != nil {
		return fmt.Errorf("agent run: %w", err)
	}
	if result.Skipped || strings.TrimSpace(result.Text) == "" {
		log.Info("turn_canceled", "reason", "empty result", "skipped", result.Skipped)
		return nil
	}

	// Staleness guard: the triggering message must still be the thread's
	// last. Best effort, not a lock.
	fresh, err := c.api.ThreadReplies(ctx, ev.Channel, rootTS)
	if err != nil {
		return fmt.Errorf("refetch thread: %w", err)
	}
	if len(fresh) == 0 || fresh[len(fresh)-1].TS != ev.TS {
		log.Info("turn_canceled", "reason", "history updated")
		return nil
	}

	for _, line := range strings.Split(result.Text, "\n") {
		if line == "" {
			continue
		}
		if _, err := c.api.PostMessage(ctx, ev.Channel, line, threadTS, false); err != nil {
			return fmt.Errorf("send line: %w", err)
		}
	}
	log.Info("turn_done")
	return nil
}

func (c *Controller) channelAllowed(channel string) bool {
	return strings.HasPrefix(channel, "D") || c.allowed[strings.ToUpper(channel)]
}

// rejectChannel warns once and leaves. Subtyped events stay silent so join
// notices and edits do not trigger repeated leave attempts.
func (c *Controller) rejectChannel(ctx context.Context, ev Event, log *slog.Logger) error {
	log.Info("bad_channel")
	if ev.Subtype != "" {
		return nil
	}
	notice := fmt.Sprintf("Ask <@%s> if you want Grook in this channel.", c.cfg.CreatorID)
	if err := c.api.PostEphemeral(ctx, ev.Channel, ev.User, notice); err != nil {
		log.Warn("ephemeral_failed", "error", err)
	}
	if err := c.api.LeaveChannel(ctx, ev.Channel); err != nil {
		return fmt.Errorf("leave channel: %w", err)
	}
	return nil
}

// creatorFastPath answers "who made you" style questions directly, without a
// model call.
func (c *Controller) creatorFastPath(ctx context.Context, ev Event, log *slog.Logger) bool {
	if ev.Subtype != "" {
		return false
	}
	text := strings.ToLower(ev.Text)
	asked := strings.Contains(text, "who made") ||
		strings.Contains(text, "who created") ||
		strings.Contains(text, "your creator") ||
		strings.Contains(text, "made you")
	if !asked {
		return false
	}
	log.Info("creator_fast_path")
	if _, err := c.api.PostMessage(ctx, ev.Channel, creditsText, ev.ThreadTS, false); err != nil {
		log.Warn("credits_post_failed", "error", err)
	}
	return true
}

// threadFor maps the event subtype to the thread the reply goes to. The
// second return is false for subtypes the bot ignores.
func (c *Controller) threadFor(ev Event) (string, bool) {
	threadTS := ev.TS
	if ev.ThreadTS != "" {
		threadTS = ev.ThreadTS
	}
	switch ev.Subtype {
	case "", "file_share":
		return threadTS, true
	case "channel_join":
		// Join notices get a top-level reply, not a thread on the notice.
		return "", true
	default:
		return "", false
	}
}

func (c *Controller) botAlreadyReacted(ctx context.Context, ev Event) (bool, error) {
	reactions, err := c.api.MessageReactions(ctx, ev.Channel, ev.TS)
	if err != nil {
		return false, err
	}
	for _, reaction := range reactions {
		for _, user := range reaction.Users {
			if user == c.cfg.BotID {
				return true, nil
			}
		}
	}
	return false, nil
}

package servecmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sami9889/grook/agent"
	"github.com/Sami9889/grook/guard"
	"github.com/Sami9889/grook/internal/configutil"
	"github.com/Sami9889/grook/internal/idempotency"
	"github.com/Sami9889/grook/internal/slackapi"
	"github.com/Sami9889/grook/internal/threadctx"
	"github.com/Sami9889/grook/internal/turn"
	"github.com/Sami9889/grook/internal/websearch"
	anthropicprovider "github.com/Sami9889/grook/providers/anthropic"
	"github.com/Sami9889/grook/tools"
	slacktools "github.com/Sami9889/grook/tools/slack"
)

// runtime holds everything one serve invocation needs.
type runtime struct {
	api        *slackapi.Client
	controller *turn.Controller
	dedup      *idempotency.SeenSet
	sem        chan struct{}
	botUserID  string
	log        *slog.Logger
}

func buildRuntime(ctx context.Context, cmd *cobra.Command, log *slog.Logger) (*runtime, error) {
	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	if botToken == "" {
		return nil, fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or GROOK_SLACK_BOT_TOKEN)")
	}
	appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))

	model := strings.TrimSpace(configutil.FlagOrViperString(cmd, "model", "llm.model"))
	if model == "" {
		return nil, fmt.Errorf("missing llm.model (set via --model or GROOK_LLM_MODEL)")
	}
	moderationModel := strings.TrimSpace(configutil.FlagOrViperString(cmd, "moderation-model", "llm.moderation_model"))
	if moderationModel == "" {
		moderationModel = model
	}
	visionModel := strings.TrimSpace(configutil.FlagOrViperString(cmd, "vision-model", "llm.vision_model"))
	if visionModel == "" {
		visionModel = model
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	api, err := slackapi.New(httpClient, "", botToken, appToken)
	if err != nil {
		return nil, fmt.Errorf("slack client: %w", err)
	}
	auth, err := api.AuthTest(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth.test: %w", err)
	}
	botUserID := auth.UserID

	client, err := anthropicprovider.New(anthropicprovider.Config{
		APIKey:         viper.GetString("anthropic.api_key"),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	})
	if err != nil {
		return nil, err
	}
	sharedGuard, err := guard.New(client, moderationModel, log)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	toolset := []tools.Tool{
		slacktools.NewSkipTool(),
		slacktools.NewGetProfileTool(api),
		slacktools.NewSendDMTool(api, sharedGuard),
		slacktools.NewSendChannelMessageTool(api, sharedGuard),
		slacktools.NewReactTool(api),
		slacktools.NewLinkPeekTool(httpClient),
		slacktools.NewAnalyzeImageTool(httpClient, client, visionModel, botToken),
	}
	if braveKey := strings.TrimSpace(viper.GetString("brave.api_key")); braveKey != "" {
		searcher, err := websearch.New(httpClient, "", braveKey)
		if err != nil {
			return nil, err
		}
		toolset = append(toolset, slacktools.NewSearchWebTool(api, searcher, log))
	} else {
		log.Info("search_web_disabled", "reason", "no brave.api_key")
	}
	for _, t := range toolset {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	maxSteps := configutil.FlagOrViperInt(cmd, "max-steps", "max_steps")
	engine, err := agent.New(client, registry, model,
		agent.WithGuard(sharedGuard),
		agent.WithMaxSteps(maxSteps),
		agent.WithLogger(log),
		agent.WithParameters(map[string]any{"temperature": 0.4}),
	)
	if err != nil {
		return nil, err
	}

	builder, err := threadctx.NewBuilder(api, httpClient, botToken, botUserID, log)
	if err != nil {
		return nil, err
	}

	turnTimeout := configutil.FlagOrViperDuration(cmd, "turn-timeout", "turn_timeout")
	if turnTimeout <= 0 {
		turnTimeout = 5 * time.Minute
	}
	controller, err := turn.NewController(api, builder, engine, turn.Config{
		BotID:           botUserID,
		CreatorID:       strings.TrimSpace(configutil.FlagOrViperString(cmd, "creator-id", "creator_id")),
		AllowedChannels: configutil.FlagOrViperStringArray(cmd, "allowed-channel-id", "slack.allowed_channel_ids"),
		TurnTimeout:     turnTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	maxConc := configutil.FlagOrViperInt(cmd, "max-concurrency", "slack.max_concurrency")
	if maxConc <= 0 {
		maxConc = 3
	}

	return &runtime{
		api:        api,
		controller: controller,
		dedup:      idempotency.NewSeenSet(4096),
		sem:        make(chan struct{}, maxConc),
		botUserID:  botUserID,
		log:        log,
	}, nil
}

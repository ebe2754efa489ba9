// Package servecmd runs the bot daemon: Socket Mode by default, or an HTTP
// Events API receiver behind --mode=events.
package servecmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Sami9889/grook/internal/configutil"
	"github.com/Sami9889/grook/internal/healthcheck"
	"github.com/Sami9889/grook/internal/idempotency"
	"github.com/Sami9889/grook/internal/turn"
)

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type eventsAPIPayload struct {
	Type      string          `json:"type,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Challenge string          `json:"challenge,omitempty"`
}

type messageEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := slog.Default()
			rt, err := buildRuntime(cmd.Context(), cmd, log)
			if err != nil {
				return err
			}

			healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen"))
			if healthListen != "" {
				healthServer, err := healthcheck.StartServer(cmd.Context(), log, healthListen, "serve")
				if err != nil {
					log.Warn("health_server_start_error", "addr", healthListen, "error", err.Error())
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = healthServer.Shutdown(shutdownCtx)
						cancel()
					}()
				}
			}

			mode := strings.ToLower(strings.TrimSpace(configutil.FlagOrViperString(cmd, "mode", "slack.mode")))
			if mode == "" {
				mode = "socket"
			}
			log.Info("serve_start", "mode", mode, "bot_user_id", rt.botUserID)
			switch mode {
			case "socket":
				return runSocket(cmd.Context(), rt)
			case "events":
				listen := strings.TrimSpace(configutil.FlagOrViperString(cmd, "listen", "slack.listen"))
				if listen == "" {
					listen = ":8080"
				}
				secret := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-signing-secret", "slack.signing_secret"))
				if secret == "" {
					return fmt.Errorf("missing slack.signing_secret (required for --mode=events)")
				}
				return runEvents(cmd.Context(), rt, listen, secret)
			default:
				return fmt.Errorf("unknown mode %q (want socket or events)", mode)
			}
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().String("slack-signing-secret", "", "Slack signing secret (events mode).")
	cmd.Flags().String("mode", "socket", "Event transport: socket|events.")
	cmd.Flags().String("listen", ":8080", "HTTP listen address (events mode).")
	cmd.Flags().StringArray("allowed-channel-id", nil, "Allowed Slack channel id(s). DMs are always allowed.")
	cmd.Flags().String("creator-id", "", "Slack user id of the bot's creator.")
	cmd.Flags().String("model", "", "Primary model identifier.")
	cmd.Flags().String("moderation-model", "", "Moderation model identifier (defaults to --model).")
	cmd.Flags().String("vision-model", "", "Image analysis model identifier (defaults to --model).")
	cmd.Flags().Int("max-steps", 0, "Max agent steps per turn.")
	cmd.Flags().Duration("turn-timeout", 0, "Per-turn deadline (default 5m).")
	cmd.Flags().Int("max-concurrency", 3, "Max turns processed concurrently.")
	cmd.Flags().String("health-listen", "", "Healthcheck listen address or port (empty disables).")

	return cmd
}

func runSocket(ctx context.Context, rt *runtime) error {
	for {
		if ctx.Err() != nil {
			rt.log.Info("serve_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := rt.api.ConnectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				rt.log.Info("serve_stop", "reason", "context_canceled")
				return nil
			}
			rt.log.Warn("socket_connect_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		rt.log.Info("socket_connected")
		readErr := consumeSocket(ctx, conn, func(envelope socketEnvelope) {
			if envelope.Type != "events_api" || len(envelope.Payload) == 0 {
				return
			}
			var payload eventsAPIPayload
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				rt.log.Warn("event_payload_invalid", "error", err.Error())
				return
			}
			rt.dispatch(ctx, payload.EventID, payload.Event)
		})
		_ = conn.Close()
		if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
			rt.log.Warn("socket_read_error", "error", readErr.Error())
		}
	}
}

// consumeSocket reads envelopes until the connection drops, acking each
// envelope that carries an id before handing it to onEnvelope.
func consumeSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(socketEnvelope)) error {
	if conn == nil {
		return fmt.Errorf("websocket connection is nil")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope != nil {
			onEnvelope(envelope)
		}
	}
}

// dispatch dedups one raw message event and hands it to the turn controller
// on a bounded worker slot. Redeliveries (Slack retries on slow acks) are
// dropped here.
func (rt *runtime) dispatch(ctx context.Context, eventID string, rawEvent json.RawMessage) {
	if len(rawEvent) == 0 {
		return
	}
	var event messageEvent
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		rt.log.Warn("event_invalid", "error", err.Error())
		return
	}
	if event.Type != "message" || event.Channel == "" || event.TS == "" {
		return
	}

	key := strings.TrimSpace(eventID)
	if key == "" {
		derived, err := idempotency.EventKey(rawEvent)
		if err != nil {
			rt.log.Warn("event_key_error", "error", err.Error())
			return
		}
		key = derived
	}
	if rt.dedup.Observe(key) {
		rt.log.Debug("event_deduped", "key", key)
		return
	}

	select {
	case rt.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	turnID := uuid.NewString()
	rt.log.Debug("turn_enqueued", "turn_id", turnID, "channel", event.Channel, "ts", event.TS)
	go func() {
		defer func() { <-rt.sem }()
		err := rt.controller.Handle(ctx, turn.Event{
			Channel:  event.Channel,
			TS:       event.TS,
			ThreadTS: event.ThreadTS,
			User:     event.User,
			BotID:    event.BotID,
			Subtype:  event.Subtype,
			Text:     event.Text,
		})
		if err != nil {
			rt.log.Error("turn_failed", "turn_id", turnID, "channel", event.Channel, "ts", event.TS, "error", err.Error())
		}
	}()
}

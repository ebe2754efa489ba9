package servecmd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	maxEventBody = 1 << 20
	maxClockSkew = 5 * time.Minute
)

// runEvents serves the Slack Events API over HTTP: signature-checked POSTs
// to /slack/events, acked immediately and handled asynchronously.
func runEvents(ctx context.Context, rt *runtime, listen, signingSecret string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", rt.eventsHandler(ctx, signingSecret))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	rt.log.Info("events_listening", "addr", listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (rt *runtime) eventsHandler(ctx context.Context, signingSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := verifySignature(r.Header, body, signingSecret, time.Now()); err != nil {
			rt.log.Warn("signature_rejected", "error", err.Error())
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var payload eventsAPIPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch payload.Type {
		case "url_verification":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(payload.Challenge))
		case "event_callback":
			// Ack before handling; Slack retries anything slower than 3s.
			w.WriteHeader(http.StatusOK)
			rt.dispatch(ctx, payload.EventID, payload.Event)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

// verifySignature checks the v0 request signature and bounds the timestamp
// against replay.
func verifySignature(header http.Header, body []byte, signingSecret string, now time.Time) error {
	timestamp := header.Get("X-Slack-Request-Timestamp")
	signature := header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing signature headers")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp: %w", err)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > maxClockSkew || age < -maxClockSkew {
		return fmt.Errorf("timestamp outside allowed window")
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Package notifications posts human-readable alerts about treasury activity
// to a Slack or Discord webhook.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/httputil"
	"github.com/rs/zerolog"
)

// DefaultKinds are the audit kinds worth a chat message.
var DefaultKinds = []audit.Kind{
	audit.TradeRejected,
	audit.TradeForwarded,
	audit.TradeFailed,
	audit.BurnCompleted,
	audit.Withdrawal,
	audit.RelayRotated,
	audit.AdapterRotated,
	audit.ParamsUpdated,
}

const queueSize = 64

// Sender delivers messages to the webhook. As an audit.Sink it queues
// matching records and Run delivers them, so Emit never blocks on the
// network.
type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        zerolog.Logger
	kinds      map[audit.Kind]bool
	queue      chan string
}

func NewSender(webhookURL, botName string, log zerolog.Logger, kinds ...audit.Kind) *Sender {
	if botName == "" {
		botName = "TrahnTreasury"
	}
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	set := make(map[audit.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Log:         log,
		},
		log:   log,
		kinds: set,
		queue: make(chan string, queueSize),
	}
}

// Emit queues rec when its kind is subscribed. A full queue drops the record.
func (s *Sender) Emit(_ context.Context, rec audit.Record) {
	if !s.Enabled() || !s.kinds[rec.Kind] {
		return
	}
	select {
	case s.queue <- Format(rec):
	default:
		s.log.Warn().Str("kind", string(rec.Kind)).Msg("notification queue full, dropping")
	}
}

// Run delivers queued messages until ctx ends.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.Send(ctx, msg)
		}
	}
}

func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	s.log.Info().Str("message", formatted).Msg("notification")

	if s.webhookURL == "" {
		return
	}

	payload := s.formatPayload(formatted)
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("notification failed after retries")
		return
	}
	resp.Body.Close()
}

// Format renders rec as one line: kind, actor, then fields in key order.
func Format(rec audit.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s by %s", rec.Kind, rec.Actor.Hex())
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, rec.Fields[k])
	}
	return b.String()
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

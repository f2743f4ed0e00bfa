package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Alert kinds emitted by the calibration run.
const (
	KindLowAccuracy = "low_accuracy"
	KindAnomalies   = "anomalies_flagged"
)

// Notification carries the context of one calibration finding.
type Notification struct {
	RunTS        time.Time
	Source       string
	Kind         string
	AccuracyPct  decimal.Decimal
	ThresholdPct decimal.Decimal
	SampleCount  int
	AnomalyCount int
	Detail       string
}

// Notifier delivers calibration alerts.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered alert text via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("run", note.RunTS).
		Str("source", note.Source).
		Str("kind", note.Kind).
		Msg("alert dispatched via telegram")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[signalradar calibration]\n")
	builder.WriteString(fmt.Sprintf("Run: %s UTC\n", note.RunTS.UTC().Format(time.RFC3339)))
	switch note.Kind {
	case KindLowAccuracy:
		builder.WriteString(fmt.Sprintf("Source %q accuracy %s%% fell below %s%% (%d samples)\n",
			note.Source, note.AccuracyPct.StringFixed(1), note.ThresholdPct.StringFixed(1), note.SampleCount))
	case KindAnomalies:
		builder.WriteString(fmt.Sprintf("%d signal(s) flagged anomalous against live reference prices\n", note.AnomalyCount))
	default:
		builder.WriteString(note.Kind + "\n")
	}
	if note.Detail != "" {
		builder.WriteString(note.Detail)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

// CLAUDE:SUMMARY Run outcome notifications: structured log line by default, Telegram chat message when configured.
// Package notify reports finished runs to operators.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

// Notifier is told about every finished run.
type Notifier interface {
	RunFinished(ctx context.Context, site *model.Site, rec *model.RunRecord) error
}

// Log writes one structured line per run.
type Log struct {
	Logger *slog.Logger
}

func (l Log) RunFinished(_ context.Context, site *model.Site, rec *model.RunRecord) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if rec.State == model.StateError {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "notify: run finished",
		"site_id", site.ID, "run_id", rec.ID, "state", rec.State, "strategy", rec.Strategy,
		"found", rec.Found, "staged", rec.Staged, "failed", rec.Failed, "message", rec.Message)
	return nil
}

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts run summaries to one chat.
type Telegram struct {
	api    Sender
	chatID int64
	// OnlyProblems suppresses messages for runs that completed and staged
	// at least one product.
	OnlyProblems bool
}

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram: %w", err)
	}
	return NewTelegramWithSender(api, chatID), nil
}

// NewTelegramWithSender uses an existing sender (tests, shared bot).
func NewTelegramWithSender(api Sender, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) RunFinished(_ context.Context, site *model.Site, rec *model.RunRecord) error {
	if t.OnlyProblems && rec.State == model.StateCompleted && rec.Staged > 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatRun(site, rec))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}

// Multi notifies every notifier and returns the first error.
type Multi []Notifier

func (m Multi) RunFinished(ctx context.Context, site *model.Site, rec *model.RunRecord) error {
	var first error
	for _, n := range m {
		if err := n.RunFinished(ctx, site, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FormatRun renders a run summary as Telegram HTML.
func FormatRun(site *model.Site, rec *model.RunRecord) string {
	var b strings.Builder
	icon := "✅"
	switch rec.State {
	case model.StateError:
		icon = "❌"
	case model.StateStopped:
		icon = "⏹"
	}
	if rec.State == model.StateCompleted && rec.Found == 0 {
		icon = "⚠️"
	}
	name := site.Name
	if name == "" {
		name = site.ID
	}
	fmt.Fprintf(&b, "%s <b>%s</b> %s\n", icon, html.EscapeString(name), rec.State)
	if rec.Strategy != "" {
		fmt.Fprintf(&b, "strategy: %s\n", html.EscapeString(rec.Strategy))
	}
	fmt.Fprintf(&b, "found %d, staged %d", rec.Found, rec.Staged)
	if rec.Failed > 0 {
		fmt.Fprintf(&b, ", failed %d", rec.Failed)
	}
	if rec.FinishedAt != nil && !rec.StartedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}
	if rec.Message != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(rec.Message))
	}
	fmt.Fprintf(&b, "\n<code>%s</code>", html.EscapeString(rec.ID))
	return b.String()
}

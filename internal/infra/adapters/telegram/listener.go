package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"order-bridge/internal/config"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/infra/metrics"
)

// ErrPollingStopped is returned by Run when the update channel closes on its own.
var ErrPollingStopped = errors.New("telegram polling stopped")

// botAPI is the subset of *tgbotapi.BotAPI the adapters use.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ botAPI = (*tgbotapi.BotAPI)(nil)

// SnippetSink receives accepted chat lines, in arrival order.
type SnippetSink interface {
	Append(s model.ChatSnippet)
}

func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// Listener polls updates for one group and forwards messages from the
// whitelisted senders. Photos are saved into imageDir first.
type Listener struct {
	bot      botAPI
	chatID   int64
	senders  map[string]struct{}
	imageDir string
	sink     SnippetSink
	http     *http.Client
	log      *zerolog.Logger
}

func NewListener(bot botAPI, cfg config.TelegramConfig, imageDir string, sink SnippetSink, logger *zerolog.Logger) *Listener {
	senders := make(map[string]struct{}, len(cfg.WatchSenders))
	for _, s := range cfg.WatchSenders {
		senders[normSender(s)] = struct{}{}
	}
	l := logger.With().Str("component", "tg_listener").Int64("chat_id", cfg.WatchChatID).Logger()
	return &Listener{
		bot:      bot,
		chatID:   cfg.WatchChatID,
		senders:  senders,
		imageDir: imageDir,
		sink:     sink,
		http:     &http.Client{Timeout: 60 * time.Second},
		log:      &l,
	}
}

// Run blocks until ctx ends or the update stream closes.
func (l *Listener) Run(ctx context.Context) error {
	if err := os.MkdirAll(l.imageDir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}
	updates := l.bot.GetUpdatesChan(u)
	l.log.Info().Int("senders", len(l.senders)).Msg("listening")

	for {
		select {
		case <-ctx.Done():
			l.bot.StopReceivingUpdates()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return ErrPollingStopped
			}
			l.handle(ctx, up)
		}
	}
}

func (l *Listener) handle(ctx context.Context, up tgbotapi.Update) {
	msg := up.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != l.chatID {
		return
	}
	sender, ok := l.allowed(msg.From)
	if !ok {
		metrics.IncTelegramMessage(kindOf(msg), "ignored")
		return
	}
	at := msg.Time()

	switch {
	case len(msg.Photo) > 0:
		if msg.Caption != "" {
			l.appendText(at, sender, msg.Caption)
		}
		// Telegram lists sizes smallest first.
		photo := msg.Photo[len(msg.Photo)-1]
		name, err := l.savePhoto(ctx, photo)
		if err != nil {
			metrics.IncImageDownload("error")
			l.log.Error().Err(err).Int("message_id", msg.MessageID).Msg("photo download failed")
			return
		}
		snip, err := model.NewImageSnippet(at, sender, name)
		if err != nil {
			return
		}
		l.sink.Append(snip)
		metrics.IncTelegramMessage("image", "accepted")
		l.log.Debug().Str("sender", sender).Str("file", name).Msg("image received")
	case msg.Text != "":
		l.appendText(at, sender, msg.Text)
	default:
		metrics.IncTelegramMessage("other", "ignored")
	}
}

func (l *Listener) appendText(at time.Time, sender, text string) {
	snip, err := model.NewTextSnippet(at, sender, text)
	if err != nil {
		return
	}
	l.sink.Append(snip)
	metrics.IncTelegramMessage("text", "accepted")
	l.log.Debug().Str("sender", sender).Int("len", len(text)).Msg("text received")
}

// allowed matches the sender by @username, username, or full name and
// returns the name to record on the snippet.
func (l *Listener) allowed(u *tgbotapi.User) (string, bool) {
	if u == nil {
		return "", false
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	for _, cand := range []string{u.UserName, full} {
		if cand == "" {
			continue
		}
		if _, ok := l.senders[normSender(cand)]; ok {
			if full != "" {
				return full, true
			}
			return u.UserName, true
		}
	}
	return "", false
}

// savePhoto stores the photo as <FileUniqueID>.jpg; an existing file is reused.
func (l *Listener) savePhoto(ctx context.Context, p tgbotapi.PhotoSize) (string, error) {
	name := p.FileUniqueID + ".jpg"
	dst := filepath.Join(l.imageDir, name)
	if _, err := os.Stat(dst); err == nil {
		metrics.IncImageDownload("exists")
		return name, nil
	}

	url, err := l.bot.GetFileDirectURL(p.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download photo: http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(l.imageDir, name+".*.part")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	metrics.IncImageDownload("ok")
	return name, nil
}

func normSender(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func kindOf(m *tgbotapi.Message) string {
	switch {
	case len(m.Photo) > 0:
		return "image"
	case m.Text != "":
		return "text"
	}
	return "other"
}

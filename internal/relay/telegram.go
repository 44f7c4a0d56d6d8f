package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// Options configure the Telegram transport.
type Options struct {
	Token        string
	SourceChatID int64
	DestChatID   int64
	ServerURL    string
}

// Telegram long-polls the Bot API, hands accepted messages to a handler and
// relays results to the destination chat.
type Telegram struct {
	bot    *bot.Bot
	opts   Options
	logger zerolog.Logger

	mu       sync.RWMutex
	onUpdate func(ctx context.Context, update *models.Update)
}

// NewTelegram builds the transport without contacting the API.
func NewTelegram(opts Options, logger zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram bot token is required")
	}

	t := &Telegram{
		opts:   opts,
		logger: logger.With().Str("component", "telegram").Logger(),
	}

	botOpts := []bot.Option{
		bot.WithDefaultHandler(t.route),
		bot.WithSkipGetMe(),
		bot.WithErrorsHandler(func(err error) {
			t.logger.Warn().Err(err).Msg("telegram polling error")
		}),
	}
	if opts.ServerURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(strings.TrimRight(opts.ServerURL, "/")))
	}

	b, err := bot.New(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = b
	return t, nil
}

// Listen polls for updates until ctx is cancelled and calls handle for each
// accepted message from the source chat.
func (t *Telegram) Listen(ctx context.Context, handle HandlerFunc) error {
	if t.opts.SourceChatID == 0 {
		return errors.New("telegram source chat id is required")
	}

	t.setUpdateHandler(func(ctx context.Context, update *models.Update) {
		msg, ok := Accept(update, t.opts.SourceChatID)
		if !ok {
			return
		}
		t.logger.Debug().Int("message_id", msg.ID).Int64("chat_id", msg.ChatID).Msg("message accepted")
		handle(ctx, msg)
	})

	t.logger.Info().Int64("source_chat_id", t.opts.SourceChatID).Int64("dest_chat_id", t.opts.DestChatID).Msg("listening for messages")
	t.bot.Start(ctx)
	return nil
}

// Forward copies the original message into the destination chat.
func (t *Telegram) Forward(ctx context.Context, msg Message) error {
	if t.opts.DestChatID == 0 {
		return errors.New("telegram destination chat id is required")
	}
	_, err := t.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     t.opts.DestChatID,
		FromChatID: msg.ChatID,
		MessageID:  msg.ID,
	})
	if err != nil {
		return fmt.Errorf("forward message %d: %w", msg.ID, err)
	}
	return nil
}

// Send posts text to the destination chat, split to fit the message limit.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.opts.DestChatID == 0 {
		return errors.New("telegram destination chat id is required")
	}
	return t.sendTo(ctx, t.opts.DestChatID, text)
}

// RunChatIDEcho answers every text message with the id of its chat until ctx
// is cancelled.
func (t *Telegram) RunChatIDEcho(ctx context.Context) error {
	t.setUpdateHandler(func(ctx context.Context, update *models.Update) {
		msg := update.Message
		if msg == nil {
			msg = update.ChannelPost
		}
		if msg == nil || msg.Text == "" {
			return
		}
		t.logger.Info().Int64("chat_id", msg.Chat.ID).Msg("chat id requested")
		if err := t.sendTo(ctx, msg.Chat.ID, fmt.Sprintf("Your Chat ID is: %d", msg.Chat.ID)); err != nil {
			t.logger.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("chat id reply failed")
		}
	})

	t.logger.Info().Msg("echoing chat ids")
	t.bot.Start(ctx)
	return nil
}

func (t *Telegram) sendTo(ctx context.Context, chatID int64, text string) error {
	chunks := Chunk(text, MaxMessageLength)
	for i, chunk := range chunks {
		if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			return fmt.Errorf("send message part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (t *Telegram) setUpdateHandler(fn func(ctx context.Context, update *models.Update)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

func (t *Telegram) route(ctx context.Context, _ *bot.Bot, update *models.Update) {
	t.mu.RLock()
	fn := t.onUpdate
	t.mu.RUnlock()
	if fn != nil {
		fn(ctx, update)
	}
}

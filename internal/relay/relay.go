package relay

import (
	"context"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// MaxMessageLength is the Telegram limit for one text message.
const MaxMessageLength = 4096

// Message is an incoming text message from the watched chat.
type Message struct {
	ID     int       `json:"id"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
	Date   time.Time `json:"date"`
}

// HandlerFunc processes one accepted message.
type HandlerFunc func(ctx context.Context, msg Message)

// Accept extracts a Message from an update when it is a text (or captioned)
// message or channel post from the source chat.
func Accept(update *models.Update, sourceChatID int64) (Message, bool) {
	if update == nil {
		return Message{}, false
	}
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil || msg.Chat.ID != sourceChatID {
		return Message{}, false
	}

	text := msg.Text
	if strings.TrimSpace(text) == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}

	return Message{
		ID:     msg.ID,
		ChatID: msg.Chat.ID,
		Text:   text,
		Date:   time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

// Chunk splits text into pieces of at most limit UTF-16 code units, which is
// how Telegram measures message length, cutting on the last newline inside
// the window when there is one.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	runes := []rune(text)
	if utf16Len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf16Len(runes) > limit {
		end := window(runes, limit)
		cut := end
		for i := end - 1; i > end/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		if piece := strings.TrimRight(string(runes[:cut]), "\n"); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[cut:]
	}
	if rest := string(runes); strings.TrimSpace(rest) != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// window returns how many leading runes fit into limit UTF-16 code units,
// never less than one.
func window(runes []rune, limit int) int {
	units := 0
	for i, r := range runes {
		units += runeUnits(r)
		if units > limit {
			return max(i, 1)
		}
	}
	return len(runes)
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := len(utf16.Encode([]rune{r})); n > 0 {
		return n
	}
	return 1
}

// Package telegram implements the bot Adapter for Telegram using long
// polling. Keyboards become inline keyboards; button presses arrive as
// callback queries.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fiberline/opsbot/internal/bot"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is used when Telegram does not say how long to wait.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// maxText is Telegram's message length limit.
	maxText = 4096
	// maxImageBytes caps downloaded photos.
	maxImageBytes = 10 << 20
)

// botClient abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botClient interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// fetchFunc downloads a file.
type fetchFunc func(ctx context.Context, url string) ([]byte, error)

// Adapter implements bot.Adapter for Telegram.
type Adapter struct {
	client      botClient
	fetch       fetchFunc
	log         *zap.Logger
	token       string
	pollTimeout int
	botUserID   string
	mu          sync.Mutex
	connected   bool
	closed      bool
	inbound     chan bot.InboundMessage
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token       string // bot token from @BotFather
	PollTimeout int    // long-poll timeout in seconds
	Logger      *zap.Logger
	// For testing: inject a mock client and downloader.
	Client botClient
	Fetch  fetchFunc
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	a := &Adapter{
		client:      opts.Client,
		fetch:       opts.Fetch,
		log:         opts.Logger,
		token:       opts.Token,
		pollTimeout: opts.PollTimeout,
		inbound:     make(chan bot.InboundMessage, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.pollTimeout <= 0 {
		a.pollTimeout = 30
	}
	if a.fetch == nil {
		client := &http.Client{Timeout: 30 * time.Second}
		a.fetch = func(ctx context.Context, url string) ([]byte, error) {
			return download(ctx, client, url)
		}
	}
	return a, nil
}

// Connect authenticates the bot token and records the bot's identity.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.client == nil {
		api, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: auth: %w", err)
		}
		a.botUserID = strconv.FormatInt(api.Self.ID, 10)
		a.log.Info("telegram: connected", zap.String("user", api.Self.UserName), zap.String("id", a.botUserID))
		a.client = api
	}
	a.connected = true
	return nil
}

// Listen starts long polling and returns the inbound message channel.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.pollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := a.client.GetUpdatesChan(u)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pumpUpdates(listenCtx, updates)
	}()
	return a.inbound, nil
}

// Send posts a message with Markdown formatting, falling back to plain
// text when Telegram rejects the markup.
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", msg.ChannelID)
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = tgbotapi.ModeMarkdown
	if len(msg.Keyboard) > 0 {
		out.ReplyMarkup = buildKeyboard(msg.Keyboard)
	}

	err = a.send(ctx, out)
	if isParseError(err) {
		a.log.Debug("telegram: markdown rejected, resending as plain text", zap.Error(err))
		out.ParseMode = ""
		err = a.send(ctx, out)
	}
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, c tgbotapi.Chattable) error {
	return a.retryOnRateLimit(ctx, func() error {
		_, err := a.client.Send(c)
		return err
	})
}

// MaxMessageLen implements bot.MessageLimiter.
func (a *Adapter) MaxMessageLen() int { return maxText }

// Close stops polling and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	wasListening := a.cancelFunc != nil
	if wasListening {
		a.cancelFunc()
	}
	connected := a.connected
	a.connected = false
	a.mu.Unlock()

	if connected && wasListening {
		a.client.StopReceivingUpdates()
	}
	a.wg.Wait()
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Telegram user ID.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

func (a *Adapter) pumpUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			a.handleUpdate(ctx, u)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		a.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		a.handleMessage(ctx, u.Message)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || m.From.IsBot {
		return
	}
	msg := bot.InboundMessage{
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		UserName:  displayName(m.From),
		Text:      m.Text,
		Timestamp: m.Time(),
	}
	if len(m.Photo) > 0 {
		msg.Text = m.Caption
		msg.Photo = a.downloadPhoto(ctx, m.Photo)
	}
	a.deliver(ctx, msg)
}

// handleCallback answers the callback query so the client stops its
// spinner, then forwards the button data as the action.
func (a *Adapter) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := a.client.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		a.log.Warn("telegram: answer callback", zap.Error(err))
	}
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	a.deliver(ctx, bot.InboundMessage{
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(cq.Message.Chat.ID, 10),
		UserID:    strconv.FormatInt(cq.From.ID, 10),
		UserName:  displayName(cq.From),
		Action:    cq.Data,
		Timestamp: time.Now(),
	})
}

// downloadPhoto fetches the largest size. Failures are logged and yield a
// photo with no data.
func (a *Adapter) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) *bot.Photo {
	largest := sizes[len(sizes)-1]
	photo := &bot.Photo{FileName: largest.FileUniqueID + ".jpg"}
	url, err := a.client.GetFileDirectURL(largest.FileID)
	if err != nil {
		a.log.Warn("telegram: resolve photo", zap.Error(err))
		return photo
	}
	data, err := a.fetch(ctx, url)
	if err != nil {
		a.log.Warn("telegram: download photo", zap.Error(err))
		return photo
	}
	photo.Data = data
	return photo
}

func (a *Adapter) deliver(ctx context.Context, msg bot.InboundMessage) {
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func buildKeyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var r []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(r...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// isParseError reports whether Telegram rejected the message markup.
func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Message, "can't parse entities")
}

// retryOnRateLimit calls fn and retries on Telegram flood-control errors,
// honoring retry_after when present. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.log.Warn("telegram: rate limited", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

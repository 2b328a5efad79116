// Package discord implements the bot Adapter for Discord using the Gateway
// WebSocket. Keyboards become message components; button presses arrive as
// component interactions.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fiberline/opsbot/internal/bot"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// maxContent is Discord's message content limit.
	maxContent = 2000
	// Discord allows five action rows of five buttons per message.
	maxRows       = 5
	maxRowButtons = 5
	maxLabel      = 80
	// maxImageBytes caps downloaded attachments.
	maxImageBytes = 10 << 20
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// fetchFunc downloads an attachment.
type fetchFunc func(ctx context.Context, url string) ([]byte, error)

// Adapter implements bot.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess        session
	fetch       fetchFunc
	log         *zap.Logger
	botToken    string
	channelID   string // when set, only this channel is served
	botUserID   string
	mu          sync.Mutex
	connected   bool
	closed      bool
	inbound     chan bot.InboundMessage
	listenCtx   context.Context
	cancelFunc  context.CancelFunc
	removers    []func()
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // optional: restrict the bot to one channel
	Logger    *zap.Logger
	// For testing: inject a mock session and downloader.
	Session session
	Fetch   fetchFunc
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	a := &Adapter{
		sess:        opts.Session,
		fetch:       opts.Fetch,
		log:         opts.Logger,
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		inbound:     make(chan bot.InboundMessage, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.fetch == nil {
		client := &http.Client{Timeout: 30 * time.Second}
		a.fetch = func(ctx context.Context, url string) ([]byte, error) {
			return download(ctx, client, url)
		}
	}
	return a, nil
}

// Connect opens the Gateway connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
		a.sess = dg
	}

	a.removers = append(a.removers,
		a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			a.mu.Lock()
			a.botUserID = r.User.ID
			a.mu.Unlock()
			a.log.Info("discord: connected", zap.String("user", r.User.Username), zap.String("id", r.User.ID))
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			a.log.Warn("discord: gateway disconnected, discordgo will auto-reconnect")
		}),
	)

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen registers the message and interaction handlers. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.listenCtx, a.cancelFunc = context.WithCancel(ctx)
	listenCtx := a.listenCtx

	a.removers = append(a.removers,
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessage(listenCtx, m)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(listenCtx, i)
		}),
	)
	return a.inbound, nil
}

// Send posts a message, rendering any keyboard as button components.
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	data := buildMessageSend(msg)
	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(channelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// MaxMessageLen implements bot.MessageLimiter.
func (a *Adapter) MaxMessageLen() int { return maxContent }

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	for _, remove := range a.removers {
		remove()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available once Ready fires).
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

func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == a.BotUserID() {
		return
	}
	if a.channelID != "" && m.ChannelID != a.channelID {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)
	msg := bot.InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		Timestamp: ts,
	}
	if att := firstImage(m.Attachments); att != nil {
		data, err := a.fetch(ctx, att.URL)
		if err != nil {
			a.log.Warn("discord: download attachment", zap.String("file", att.Filename), zap.Error(err))
		}
		msg.Photo = &bot.Photo{FileName: att.Filename, Data: data}
	}
	a.deliver(ctx, msg)
}

// handleInteraction acknowledges a button press and forwards its custom ID
// as the action.
func (a *Adapter) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	if a.channelID != "" && i.ChannelID != a.channelID {
		return
	}
	err := a.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		a.log.Warn("discord: acknowledge interaction", zap.Error(err))
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	a.deliver(ctx, bot.InboundMessage{
		Platform:  "discord",
		ChannelID: i.ChannelID,
		UserID:    user.ID,
		UserName:  user.Username,
		Action:    i.MessageComponentData().CustomID,
		Timestamp: time.Now(),
	})
}

func (a *Adapter) deliver(ctx context.Context, msg bot.InboundMessage) {
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

func firstImage(atts []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, att := range atts {
		if att != nil && strings.HasPrefix(att.ContentType, "image/") {
			return att
		}
	}
	return nil
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
		return nil, fmt.Errorf("discord: download %s: %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// buildMessageSend translates an OutboundMessage into a Discord MessageSend.
// Buttons are packed five to a row; anything past Discord's limit is dropped
// except the final Cancel, which is always kept.
func buildMessageSend(msg bot.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Text}
	var buttons []bot.Button
	for _, row := range msg.Keyboard {
		buttons = append(buttons, row...)
	}
	if len(buttons) == 0 {
		return data
	}
	if limit := maxRows * maxRowButtons; len(buttons) > limit {
		last := buttons[len(buttons)-1]
		buttons = append(buttons[:limit-1], last)
	}
	for len(buttons) > 0 {
		n := min(maxRowButtons, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[:n] {
			row.Components = append(row.Components, toButton(b))
		}
		data.Components = append(data.Components, row)
		buttons = buttons[n:]
	}
	return data
}

func toButton(b bot.Button) discordgo.Button {
	label := b.Label
	if r := []rune(label); len(r) > maxLabel {
		label = string(r[:maxLabel])
	}
	style := discordgo.SecondaryButton
	switch b.Action {
	case string(bot.ActCancel):
		style = discordgo.DangerButton
	case string(bot.ActConfirm), string(bot.ActRebootConfirm):
		style = discordgo.PrimaryButton
	}
	return discordgo.Button{Label: label, Style: style, CustomID: b.Action}
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.log.Warn("discord: rate limited", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

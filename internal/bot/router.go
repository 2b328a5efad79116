package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiberline/opsbot/internal/audit"
	"github.com/fiberline/opsbot/internal/config"
	"github.com/fiberline/opsbot/internal/session"
	"go.uber.org/zap"
)

// Router runs one conversation turn per inbound message: it loads the
// session, expires it when idle too long, gates button actions on the
// current step, dispatches to the flow handlers and saves the result.
type Router struct {
	api       API
	store     session.Store
	adapter   Adapter
	audit     audit.Recorder
	cfg       *config.Config
	botUserID string
	maxLen    int
	grace     time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	API       API
	Store     session.Store
	Adapter   Adapter
	Config    *config.Config
	Audit     audit.Recorder   // optional
	BotUserID string           // bot's user ID for self-message filtering
	Now       func() time.Time // defaults to time.Now
	Logger    *zap.Logger      // defaults to zap.NewNop()
	// ShutdownGrace is how long a turn may keep running after the context
	// passed to Handle is cancelled. Defaults to DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

// DefaultShutdownGrace bounds how long an in-flight turn outlives shutdown.
const DefaultShutdownGrace = 30 * time.Second

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("bot: router: api is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: router: store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: router: config is required")
	}
	r := &Router{
		api:       opts.API,
		store:     opts.Store,
		adapter:   opts.Adapter,
		audit:     opts.Audit,
		cfg:       opts.Config,
		botUserID: opts.BotUserID,
		now:       opts.Now,
		log:       opts.Logger,
		grace:     opts.ShutdownGrace,
	}
	if r.grace <= 0 {
		r.grace = DefaultShutdownGrace
	}
	if ml, ok := opts.Adapter.(MessageLimiter); ok {
		r.maxLen = ml.MaxMessageLen()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r, nil
}

// turn is the state of one message being processed.
type turn struct {
	ctx context.Context
	msg InboundMessage
	key string
	s   *session.Session
	now time.Time
	log *zap.Logger
}

func sessionKey(msg InboundMessage) session.Key {
	return session.Key{Platform: msg.Platform, ChannelID: msg.ChannelID, UserID: msg.UserID}
}

// Handle processes a single inbound message to completion. Callers must
// not run two Handle calls for the same conversation concurrently; the
// Dispatcher guarantees this. Cancelling ctx does not abort the turn: it
// keeps running for up to the shutdown grace so that remote effects
// already applied are still recorded and the session is saved.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.botUserID != "" && msg.UserID == r.botUserID {
		return
	}
	ctx, cancel := detachTurn(ctx, r.grace)
	defer cancel()

	key := ConversationKey(msg)
	t := &turn{
		ctx: ctx,
		msg: msg,
		key: key,
		now: r.now(),
		log: r.log.With(zap.String("key", key), zap.String("user", msg.UserName)),
	}
	t.s = r.load(t)
	t.log.Debug("recv",
		zap.String("step", string(t.s.Step)),
		zap.String("text", truncate(msg.Text, 80)),
		zap.String("action", msg.Action))

	if t.s.Expired(t.now, r.cfg.SessionTimeout()) {
		t.log.Info("session expired", zap.String("step", string(t.s.Step)))
		t.s.Reset()
		r.reply(t, fmt.Sprintf(msgTimedOut, formatWindow(r.cfg.SessionTimeout())), mainMenuKeyboard())
	}
	t.s.Touch(t.now)

	switch {
	case msg.Action != "":
		r.handleAction(t, msg.Action)
	case msg.Photo != nil:
		r.handlePhoto(t)
	default:
		r.handleText(t, strings.TrimSpace(msg.Text))
	}

	if err := r.store.Set(ctx, key, t.s); err != nil {
		t.log.Warn("session write dropped", zap.Error(err))
	}
}

// load reads the session for t, falling back to a fresh one when it is
// absent or unreadable.
func (r *Router) load(t *turn) *session.Session {
	s, err := r.store.Get(t.ctx, t.key)
	switch {
	case err == nil:
		return s
	case errors.Is(err, session.ErrNotFound):
	default:
		t.log.Warn("session read failed, starting fresh", zap.Error(err))
	}
	return session.New(t.now)
}

// handleAction decodes a button press, rejects it when it does not belong
// to the current step, and runs it.
func (r *Router) handleAction(t *turn, data string) {
	a, err := ParseAction(data)
	if err != nil {
		t.log.Debug("bad action", zap.Error(err))
		r.reply(t, msgSessionExpired, nil)
		return
	}
	switch a.Kind {
	case ActCancel:
		r.cancel(t)
		return
	case ActMenu:
		r.startProvision(t)
		return
	}
	if !RequireStep(t.s, a) {
		t.log.Info("action rejected",
			zap.String("action", a.String()), zap.String("step", string(t.s.Step)))
		r.reply(t, expiredText(flowOf(a.Kind)), nil)
		return
	}

	switch a.Kind {
	case ActCheckSelect:
		r.checkSelect(t, a)
	case ActCheckStatus, ActCheckSignal, ActCheckPortState, ActCheckConfig, ActCheckBandwidth, ActCheckEth:
		r.checkQuery(t, a.Kind)
	case ActCheckRefresh:
		r.checkRefresh(t)
	case ActCheckReboot:
		r.checkReboot(t)
	case ActRebootConfirm:
		r.checkRebootConfirm(t)
	case ActCheckLock:
		r.checkLock(t, false)
	case ActCheckUnlock:
		r.checkLock(t, true)
	case ActCheckCapacity:
		r.checkCapacity(t)
	case ActCapacity:
		r.checkCapacityPick(t, a)
	case ActCheckReconfig:
		r.checkToReconfig(t)
	case ActCheckTicket:
		r.checkToTicket(t)

	case ActOLT:
		r.provisionSelectOLT(t, a)
	case ActDevice:
		r.wizardSelectDevice(t, a)
	case ActDeviceRefresh:
		r.wizardRefreshDevices(t)
	case ActCustomer:
		r.provisionSelectCustomer(t, a)
	case ActModem:
		r.wizardSelectModem(t, a)
	case ActEthLock:
		r.wizardPortLock(t, true)
	case ActEthUnlock:
		r.wizardPortLock(t, false)
	case ActConfirm:
		r.wizardConfirm(t)

	case ActReconfigSelect:
		r.reconfigSelect(t, a)
	case ActReconfigDelete:
		r.reconfigDelete(t)
	case ActReconfigKeep:
		r.reconfigKeep(t)

	case ActTicketSelect:
		r.ticketSelect(t, a)
	case ActBillingSelect:
		r.billingSelect(t, a)
	}
}

// handleText routes a text message: slash commands first, then input
// awaited by the current step, then bare-word commands.
func (r *Router) handleText(t *turn, text string) {
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		r.handleCommand(t, text)
		return
	}
	if t.s.Step.AwaitsText() {
		switch t.s.Step {
		case session.ReconfigWaitingQuery:
			r.reconfigSearch(t, text, true)
		case session.TicketWaitingQuery:
			r.ticketQuery(t, text)
		case session.TicketWaitingDescription:
			r.ticketDescription(t, text)
		}
		return
	}

	word, args := splitCommand(text)
	switch strings.ToLower(word) {
	case "open", "o":
		r.startTicket(t, args)
	case "link", "l":
		if args == "" {
			r.reply(t, "❌ Format salah. Gunakan: `link <nama/pppoe>`", nil)
			return
		}
		r.startBilling(t, args)
	default:
		t.log.Debug("ignoring text outside a flow")
	}
}

// handleCommand runs a slash command. Telegram appends "@botname" to
// commands in group chats; it is ignored.
func (r *Router) handleCommand(t *turn, text string) {
	word, args := splitCommand(text)
	name := strings.ToLower(strings.TrimPrefix(word, "/"))
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	switch name {
	case "start":
		r.reply(t, welcomeText, mainMenuKeyboard())
	case "help":
		r.reply(t, helpText, nil)
	case "cancel":
		r.cancel(t)
	case "cek":
		r.startCheck(t, args)
	case "psb", "config":
		r.startProvision(t)
	case "cu":
		r.startReconfig(t, args)
	case "open", "o":
		r.startTicket(t, args)
	case "link", "l":
		r.startBilling(t, args)
	case "tiket":
		r.searchTickets(t, args)
	case "close":
		r.closeTicket(t, args)
	case "forward":
		r.forwardTicket(t, args)
	default:
		r.reply(t, msgUnknownCommand, nil)
	}
}

// cancel abandons whatever flow is active. Remote effects already applied
// are not undone.
func (r *Router) cancel(t *turn) {
	t.s.Reset()
	r.reply(t, msgCancelled, mainMenuKeyboard())
}

// expired answers an action whose session data is missing or whose index
// is out of range.
func (r *Router) expired(t *turn, flow session.Flow) {
	r.reply(t, expiredText(flow), nil)
}

// reply sends text to the conversation's chat, split to the platform's
// length limit. The keyboard is attached to the last piece.
func (r *Router) reply(t *turn, text string, keyboard [][]Button) {
	chunks := Chunk(text, r.maxLen)
	for i, c := range chunks {
		msg := OutboundMessage{ChannelID: t.msg.ChannelID, Text: c}
		if i == len(chunks)-1 {
			msg.Keyboard = keyboard
		}
		if err := r.adapter.Send(t.ctx, msg); err != nil {
			t.log.Warn("send reply", zap.Error(err))
			return
		}
	}
}

// record writes an audit entry for a state-changing operation.
func (r *Router) record(t *turn, action, olt, iface, target string, started time.Time, err error) {
	if r.audit == nil {
		return
	}
	e := audit.Entry{
		ConversationKey: t.key,
		UserName:        t.msg.UserName,
		Action:          action,
		OLT:             olt,
		Interface:       iface,
		Target:          target,
		Err:             err,
		Latency:         r.now().Sub(started),
	}
	if rerr := r.audit.Record(t.ctx, e); rerr != nil {
		t.log.Warn("audit record", zap.Error(rerr))
	}
}

// detachTurn returns a context that ignores parent's cancellation for up to
// grace, then is cancelled. The returned cancel must be called when the
// turn ends.
func detachTurn(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

// splitCommand returns the first word of text and the trimmed remainder.
func splitCommand(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))
}

// formatWindow renders a timeout like "2 menit".
func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d menit", int(d/time.Minute))
	}
	return fmt.Sprintf("%d detik", int(d/time.Second))
}

// capList returns at most n leading elements of list.
func capList[T any](list []T, n int) []T {
	if n > 0 && len(list) > n {
		return list[:n]
	}
	return list
}

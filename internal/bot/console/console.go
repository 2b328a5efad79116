// Package console implements the bot Adapter on a terminal, for trying
// flows locally without a chat platform. Each input line is one message;
// "#N" presses button N of the most recent keyboard.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fiberline/opsbot/internal/bot"
	"golang.org/x/term"
)

const (
	// ChannelID is the single conversation the console serves.
	ChannelID = "local"
	prompt    = "> "
	maxRule   = 60
)

// Adapter implements bot.Adapter over an io.Reader / io.Writer pair.
type Adapter struct {
	in          io.Reader
	out         io.Writer
	user        string
	interactive bool
	width       int
	now         func() time.Time

	mu        sync.Mutex
	connected bool
	closed    bool
	buttons   []bot.Button
	inbound   chan bot.InboundMessage
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// AdapterOpts holds parameters for creating a console Adapter.
type AdapterOpts struct {
	In          io.Reader
	Out         io.Writer
	User        string // defaults to $USER, then "operator"
	Interactive bool   // print a prompt after each reply
	Width       int    // terminal width for separators; 0 for the default
	Now         func() time.Time
}

// New creates a console Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.In == nil {
		return nil, fmt.Errorf("console: input is required")
	}
	if opts.Out == nil {
		return nil, fmt.Errorf("console: output is required")
	}
	a := &Adapter{
		in:          opts.In,
		out:         opts.Out,
		user:        opts.User,
		interactive: opts.Interactive,
		width:       opts.Width,
		now:         opts.Now,
		inbound:     make(chan bot.InboundMessage, 16),
	}
	if a.user == "" {
		a.user = os.Getenv("USER")
	}
	if a.user == "" {
		a.user = "operator"
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.width <= 0 || a.width > maxRule {
		a.width = maxRule
	}
	return a, nil
}

// Stdio returns options for the process's standard streams, detecting
// whether stdin is a terminal.
func Stdio() AdapterOpts {
	opts := AdapterOpts{In: os.Stdin, Out: os.Stdout}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		opts.Interactive = true
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			opts.Width = w
		}
	}
	return opts
}

// Connect prints the greeting line.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("console: adapter already closed")
	}
	if a.connected {
		return nil
	}
	a.connected = true
	if a.interactive {
		fmt.Fprintf(a.out, "console session as %s. Type /help, #N presses button N, Ctrl-D quits.\n", a.user)
	}
	return nil
}

// Listen starts reading lines. The channel closes at end of input.
func (a *Adapter) Listen(ctx context.Context) (<-chan bot.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("console: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if a.interactive {
		fmt.Fprint(a.out, prompt)
	}
	go a.readLines(listenCtx)
	return a.inbound, nil
}

func (a *Adapter) readLines(ctx context.Context) {
	defer a.closeInbound()
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg := bot.InboundMessage{
			Platform:  "console",
			ChannelID: ChannelID,
			UserID:    a.user,
			UserName:  a.user,
			Timestamp: a.now(),
		}
		if action, ok := a.press(line); ok {
			msg.Action = action
		} else {
			msg.Text = line
		}
		select {
		case a.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// press resolves "#N" against the last keyboard shown.
func (a *Adapter) press(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "#"))
	if err != nil {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 1 || n > len(a.buttons) {
		return "", false
	}
	return a.buttons[n-1].Action, true
}

// Send prints the message followed by its buttons, numbered for "#N".
func (a *Adapter) Send(ctx context.Context, msg bot.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("console: not connected")
	}

	var b strings.Builder
	if a.interactive {
		b.WriteString("\r")
	}
	b.WriteString(strings.Repeat("─", a.width))
	b.WriteString("\n")
	b.WriteString(msg.Text)
	b.WriteString("\n")

	a.buttons = a.buttons[:0]
	for _, row := range msg.Keyboard {
		var labels []string
		for _, btn := range row {
			a.buttons = append(a.buttons, btn)
			labels = append(labels, fmt.Sprintf("[#%d %s]", len(a.buttons), btn.Label))
		}
		b.WriteString(strings.Join(labels, " "))
		b.WriteString("\n")
	}
	if a.interactive {
		b.WriteString(prompt)
	}
	if _, err := io.WriteString(a.out, b.String()); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// Close stops reading. A read already blocked on the input returns at the
// next line or end of input.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	} else {
		a.closeInbound()
	}
	return nil
}

func (a *Adapter) closeInbound() {
	a.closeOnce.Do(func() { close(a.inbound) })
}

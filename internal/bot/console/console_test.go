package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fiberline/opsbot/internal/bot"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, input string, interactive bool) (*Adapter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := New(AdapterOpts{
		In:          strings.NewReader(input),
		Out:         &out,
		User:        "noc",
		Interactive: interactive,
		Width:       10,
		Now:         func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, &out
}

func drain(t *testing.T, ch <-chan bot.InboundMessage) []bot.InboundMessage {
	t.Helper()
	var msgs []bot.InboundMessage
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		case <-timeout:
			t.Fatal("inbound channel not closed at end of input")
			return msgs
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(AdapterOpts{Out: &bytes.Buffer{}}); err == nil {
		t.Error("expected error without input")
	}
	if _, err := New(AdapterOpts{In: strings.NewReader("")}); err == nil {
		t.Error("expected error without output")
	}
}

func TestNew_DefaultWidth(t *testing.T) {
	a, _ := New(AdapterOpts{In: strings.NewReader(""), Out: &bytes.Buffer{}, Width: 200})
	if a.width != maxRule {
		t.Errorf("width = %d, want %d", a.width, maxRule)
	}
}

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{In: strings.NewReader(""), Out: &bytes.Buffer{}})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error before Connect")
	}
}

func TestListen_LinesBecomeMessages(t *testing.T) {
	a, _ := newTestAdapter(t, "/cek budi\n\n  open 123  \n", false)
	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	msgs := drain(t, ch)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (blank line skipped)", len(msgs))
	}
	if msgs[0].Text != "/cek budi" || msgs[1].Text != "open 123" {
		t.Errorf("texts = %q, %q", msgs[0].Text, msgs[1].Text)
	}
	m := msgs[0]
	if m.Platform != "console" || m.ChannelID != ChannelID || m.UserID != "noc" || !m.Timestamp.Equal(t0) {
		t.Errorf("msg = %+v", m)
	}
}

func TestSend_NumbersButtons(t *testing.T) {
	a, out := newTestAdapter(t, "", false)
	err := a.Send(context.Background(), bot.OutboundMessage{
		ChannelID: ChannelID,
		Text:      "Pilih pelanggan",
		Keyboard: [][]bot.Button{
			{{Label: "1. Budi", Action: "cek_select:0"}},
			{{Label: "Ya", Action: "confirm_yes"}, {Label: "❌ Cancel", Action: "cancel"}},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := strings.Repeat("─", 10) + "\nPilih pelanggan\n[#1 1. Budi]\n[#2 Ya] [#3 ❌ Cancel]\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{In: strings.NewReader(""), Out: &bytes.Buffer{}})
	if err := a.Send(context.Background(), bot.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error before Connect")
	}
}

func TestPress(t *testing.T) {
	a, _ := newTestAdapter(t, "", false)
	a.Send(context.Background(), bot.OutboundMessage{Text: "x", Keyboard: [][]bot.Button{
		{{Label: "a", Action: "cek_status"}},
		{{Label: "b", Action: "cancel"}},
	}})

	tests := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{"#1", "cek_status", true},
		{"#2", "cancel", true},
		{"#3", "", false},
		{"#0", "", false},
		{"#x", "", false},
		{"1", "", false},
	}
	for _, tt := range tests {
		got, ok := a.press(tt.line)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("press(%q) = %q, %v, want %q, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSend_ReplacesKeyboard(t *testing.T) {
	a, _ := newTestAdapter(t, "", false)
	a.Send(context.Background(), bot.OutboundMessage{Text: "x", Keyboard: [][]bot.Button{{{Label: "a", Action: "cek_status"}}}})
	a.Send(context.Background(), bot.OutboundMessage{Text: "done"})
	if _, ok := a.press("#1"); ok {
		t.Error("button from a previous message still pressable")
	}
}

func TestInteractive_PromptAndGreeting(t *testing.T) {
	a, out := newTestAdapter(t, "", true)
	if !strings.Contains(out.String(), "console session as noc") {
		t.Errorf("greeting missing: %q", out.String())
	}
	out.Reset()
	a.Send(context.Background(), bot.OutboundMessage{Text: "hi"})
	if !strings.HasSuffix(out.String(), prompt) {
		t.Errorf("output = %q, want trailing prompt", out.String())
	}
}

func TestClose(t *testing.T) {
	a, _ := newTestAdapter(t, "", false)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Error("expected error connecting a closed adapter")
	}
}

func TestListen_PressesButton(t *testing.T) {
	a, _ := newTestAdapter(t, "#1\n", false)
	a.Send(context.Background(), bot.OutboundMessage{Text: "menu", Keyboard: [][]bot.Button{{{Label: "⚙️ Config ONT", Action: "menu_config"}}}})
	ch, _ := a.Listen(context.Background())
	msgs := drain(t, ch)
	if len(msgs) != 1 || msgs[0].Action != "menu_config" || msgs[0].Text != "" {
		t.Errorf("msgs = %+v, want one menu_config press", msgs)
	}
}

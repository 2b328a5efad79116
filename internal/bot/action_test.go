package bot

import (
	"testing"

	"github.com/fiberline/opsbot/internal/session"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "cancel", want: NewAction(ActCancel)},
		{in: "cek_status", want: NewAction(ActCheckStatus)},
		{in: "cek_select:3", want: Choose(ActCheckSelect, 3)},
		{in: "olt:0", want: Choose(ActOLT, 0)},
		{in: "modem:12", want: Choose(ActModem, 12)},
		{in: "olt", wantErr: true},
		{in: "olt:-1", wantErr: true},
		{in: "olt:x", wantErr: true},
		{in: "cek_status:1", wantErr: true},
		{in: "nope", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAction(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAction(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestRequireStep(t *testing.T) {
	s := session.New(t0)
	if !RequireStep(s, NewAction(ActCancel)) {
		t.Error("cancel should be accepted while idle")
	}
	if RequireStep(s, NewAction(ActConfirm)) {
		t.Error("confirm should be rejected while idle")
	}

	s.Transition(session.ReconfigConfirm, t0)
	if !RequireStep(s, NewAction(ActConfirm)) {
		t.Error("confirm should be accepted in RECONFIG_CONFIRM")
	}
	if RequireStep(s, Choose(ActOLT, 0)) {
		t.Error("olt should be rejected in RECONFIG_CONFIRM")
	}
}

func TestEveryGatedActionHasKnownSteps(t *testing.T) {
	for kind, steps := range requiredSteps {
		if len(steps) == 0 {
			t.Errorf("%s has no steps", kind)
		}
		for _, st := range steps {
			if !st.Known() {
				t.Errorf("%s requires unknown step %s", kind, st)
			}
		}
	}
}

func TestFlowOf(t *testing.T) {
	tests := map[ActionKind]session.Flow{
		ActCheckSelect:   session.FlowCheck,
		ActConfirm:       session.FlowProvision,
		ActReconfigKeep:  session.FlowReconfig,
		ActTicketSelect:  session.FlowTicket,
		ActBillingSelect: session.FlowBilling,
		ActCancel:        session.FlowNone,
	}
	for kind, want := range tests {
		if got := flowOf(kind); got != want {
			t.Errorf("flowOf(%s) = %q, want %q", kind, got, want)
		}
	}
}

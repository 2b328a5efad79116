package session

import (
	"encoding/json"
	"time"

	"github.com/fiberline/opsbot/internal/backend"
)

// Session is the state of one conversation. Step is the discriminant of
// the flow payloads: only the payload of Step's flow is ever non-nil.
type Session struct {
	Step         Step      `json:"step"`
	LastActivity time.Time `json:"last_activity"`
	Page         int       `json:"page,omitempty"`

	Check     *CheckData   `json:"check,omitempty"`
	Provision *WizardData  `json:"provision,omitempty"`
	Reconfig  *WizardData  `json:"reconfig,omitempty"`
	Ticket    *TicketData  `json:"ticket,omitempty"`
	Billing   *BillingData `json:"billing,omitempty"`
}

// CheckData is the status check payload.
type CheckData struct {
	Candidates []backend.Customer `json:"candidates,omitempty"`
	Customer   *backend.Customer  `json:"customer,omitempty"`
	LastAction string             `json:"last_action,omitempty"`
}

// WizardData is the payload shared by the provisioning and reconfiguration
// wizards.
type WizardData struct {
	OLTs       []string           `json:"olts,omitempty"`
	OLT        string             `json:"olt,omitempty"`
	Devices    []backend.Device   `json:"devices,omitempty"`
	Device     *backend.Device    `json:"device,omitempty"`
	Candidates []backend.Customer `json:"candidates,omitempty"`
	Customer   *backend.Customer  `json:"customer,omitempty"`
	Modem      string             `json:"modem,omitempty"`
	LockPorts  *bool              `json:"lock_ports,omitempty"`
	Removed    bool               `json:"removed,omitempty"`
}

// TicketData is the ticket creation payload.
type TicketData struct {
	Query       string             `json:"query,omitempty"`
	Description string             `json:"description,omitempty"`
	Candidates  []backend.Customer `json:"candidates,omitempty"`
	Customer    *backend.Customer  `json:"customer,omitempty"`
}

// BillingData is the billing lookup payload.
type BillingData struct {
	Query      string             `json:"query,omitempty"`
	Candidates []backend.Customer `json:"candidates,omitempty"`
}

// New returns an idle session.
func New(now time.Time) *Session {
	return &Session{Step: Idle, LastActivity: now}
}

// Flow returns the flow of the current step.
func (s *Session) Flow() Flow {
	return s.Step.Flow()
}

// Is reports whether the session is at one of steps.
func (s *Session) Is(steps ...Step) bool {
	for _, st := range steps {
		if s.Step == st {
			return true
		}
	}
	return false
}

// Transition moves the session to step and stamps the activity time.
// Payloads of flows other than step's are dropped, and the page cursor is
// reset when the flow changes.
func (s *Session) Transition(step Step, now time.Time) {
	if step.Flow() != s.Step.Flow() {
		s.Page = 0
	}
	s.Step = step
	s.LastActivity = now
	s.prune()
}

// Touch stamps the activity time without changing the step.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// Reset clears every flow field and returns the session to Idle. It does
// not change LastActivity, so resetting twice is the same as once.
func (s *Session) Reset() {
	s.Step = Idle
	s.Page = 0
	s.Check = nil
	s.Provision = nil
	s.Reconfig = nil
	s.Ticket = nil
	s.Billing = nil
}

// Expired reports whether a session that is mid-flow has been inactive for
// longer than window. Idle sessions never expire.
func (s *Session) Expired(now time.Time, window time.Duration) bool {
	if s.Step == Idle || window <= 0 {
		return false
	}
	return now.Sub(s.LastActivity) > window
}

// CheckState returns the status check payload, creating it if needed.
func (s *Session) CheckState() *CheckData {
	if s.Check == nil {
		s.Check = &CheckData{}
	}
	return s.Check
}

// ProvisionState returns the provisioning payload, creating it if needed.
func (s *Session) ProvisionState() *WizardData {
	if s.Provision == nil {
		s.Provision = &WizardData{}
	}
	return s.Provision
}

// ReconfigState returns the reconfiguration payload, creating it if needed.
func (s *Session) ReconfigState() *WizardData {
	if s.Reconfig == nil {
		s.Reconfig = &WizardData{}
	}
	return s.Reconfig
}

// TicketState returns the ticket payload, creating it if needed.
func (s *Session) TicketState() *TicketData {
	if s.Ticket == nil {
		s.Ticket = &TicketData{}
	}
	return s.Ticket
}

// BillingState returns the billing payload, creating it if needed.
func (s *Session) BillingState() *BillingData {
	if s.Billing == nil {
		s.Billing = &BillingData{}
	}
	return s.Billing
}

// prune drops payloads that do not belong to the current flow.
func (s *Session) prune() {
	flow := s.Step.Flow()
	if flow != FlowCheck {
		s.Check = nil
	}
	if flow != FlowProvision {
		s.Provision = nil
	}
	if flow != FlowReconfig {
		s.Reconfig = nil
	}
	if flow != FlowTicket {
		s.Ticket = nil
	}
	if flow != FlowBilling {
		s.Billing = nil
	}
}

// UnmarshalJSON decodes a stored session. Unknown steps decode as Idle and
// payloads that do not match the step's flow are discarded.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Session(p)
	if !s.Step.Known() {
		s.Reset()
	}
	s.prune()
	return nil
}

// Pick returns the element of list at idx, reporting false when idx is out
// of range.
func Pick[T any](list []T, idx int) (T, bool) {
	var zero T
	if idx < 0 || idx >= len(list) {
		return zero, false
	}
	return list[idx], true
}

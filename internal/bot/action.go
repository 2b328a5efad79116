package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fiberline/opsbot/internal/session"
)

// ActionKind names what a button does.
type ActionKind string

// Button actions. Kinds that carry an index encode it as "kind:N".
const (
	ActCancel ActionKind = "cancel"
	ActMenu   ActionKind = "menu_config"

	ActCheckSelect    ActionKind = "cek_select"
	ActCheckStatus    ActionKind = "cek_status"
	ActCheckSignal    ActionKind = "cek_redaman"
	ActCheckPortState ActionKind = "cek_port"
	ActCheckConfig    ActionKind = "cek_config"
	ActCheckBandwidth ActionKind = "cek_dba"
	ActCheckEth       ActionKind = "cek_eth"
	ActCheckRefresh   ActionKind = "cek_refresh"
	ActCheckReboot    ActionKind = "cek_reboot"
	ActRebootConfirm  ActionKind = "reboot_confirm"
	ActCheckLock      ActionKind = "cek_lock"
	ActCheckUnlock    ActionKind = "cek_unlock"
	ActCheckCapacity  ActionKind = "cek_capacity"
	ActCapacity       ActionKind = "capacity"
	ActCheckReconfig  ActionKind = "cek_cu"
	ActCheckTicket    ActionKind = "cek_ticket"

	ActOLT           ActionKind = "olt"
	ActDevice        ActionKind = "ont"
	ActDeviceRefresh ActionKind = "ont_refresh"
	ActCustomer      ActionKind = "psb"
	ActModem         ActionKind = "modem"
	ActEthLock       ActionKind = "eth_lock"
	ActEthUnlock     ActionKind = "eth_unlock"
	ActConfirm       ActionKind = "confirm_yes"

	ActReconfigSelect ActionKind = "cu_select"
	ActReconfigDelete ActionKind = "cu_delete"
	ActReconfigKeep   ActionKind = "cu_keep"

	ActTicketSelect  ActionKind = "ticket_select"
	ActBillingSelect ActionKind = "billing_select"
)

// Action is a decoded button press.
type Action struct {
	Kind  ActionKind
	Index int // position in the session's stored list; -1 when unused
}

// NewAction returns an action without an index.
func NewAction(kind ActionKind) Action {
	return Action{Kind: kind, Index: -1}
}

// Choose returns an action selecting position idx.
func Choose(kind ActionKind, idx int) Action {
	return Action{Kind: kind, Index: idx}
}

// String encodes the action as button callback data.
func (a Action) String() string {
	if a.Index < 0 {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + strconv.Itoa(a.Index)
}

// indexed lists kinds that must carry an index.
var indexed = map[ActionKind]bool{
	ActCheckSelect:    true,
	ActCapacity:       true,
	ActOLT:            true,
	ActDevice:         true,
	ActCustomer:       true,
	ActModem:          true,
	ActReconfigSelect: true,
	ActTicketSelect:   true,
	ActBillingSelect:  true,
}

// requiredSteps maps each action to the steps it is valid in. Actions
// absent from the map (cancel, menu) are accepted at any step.
var requiredSteps = map[ActionKind][]session.Step{
	ActCheckSelect:    {session.CheckSelect},
	ActCheckStatus:    {session.CheckActions},
	ActCheckSignal:    {session.CheckActions},
	ActCheckPortState: {session.CheckActions},
	ActCheckConfig:    {session.CheckActions},
	ActCheckBandwidth: {session.CheckActions},
	ActCheckEth:       {session.CheckActions},
	ActCheckRefresh:   {session.CheckActions},
	ActCheckReboot:    {session.CheckActions},
	ActCheckLock:      {session.CheckActions},
	ActCheckUnlock:    {session.CheckActions},
	ActCheckCapacity:  {session.CheckActions},
	ActCheckReconfig:  {session.CheckActions},
	ActCheckTicket:    {session.CheckActions},
	ActRebootConfirm:  {session.CheckConfirmReboot},
	ActCapacity:       {session.CheckSelectCapacity},

	ActOLT:           {session.ProvisionSelectOLT},
	ActDevice:        {session.ProvisionSelectDevice, session.ReconfigSelectDevice},
	ActDeviceRefresh: {session.ProvisionSelectDevice, session.ReconfigSelectDevice},
	ActCustomer:      {session.ProvisionSelectCustomer},
	ActModem:         {session.ProvisionSelectModem, session.ReconfigSelectModem},
	ActEthLock:       {session.ProvisionConfirmPortLock, session.ReconfigConfirmPortLock},
	ActEthUnlock:     {session.ProvisionConfirmPortLock, session.ReconfigConfirmPortLock},
	ActConfirm:       {session.ProvisionConfirm, session.ReconfigConfirm},

	ActReconfigSelect: {session.ReconfigSelectCustomer},
	ActReconfigDelete: {session.ReconfigConfirmDelete},
	ActReconfigKeep:   {session.ReconfigConfirmDelete},

	ActTicketSelect:  {session.TicketSelectCustomer},
	ActBillingSelect: {session.BillingSelectCustomer},
}

// ParseAction decodes button callback data.
func ParseAction(data string) (Action, error) {
	kind, arg, hasArg := strings.Cut(data, ":")
	k := ActionKind(kind)
	if _, known := requiredSteps[k]; !known && k != ActCancel && k != ActMenu {
		return Action{}, fmt.Errorf("bot: unknown action %q", data)
	}
	if !indexed[k] {
		if hasArg {
			return Action{}, fmt.Errorf("bot: action %q takes no argument", kind)
		}
		return NewAction(k), nil
	}
	if !hasArg {
		return Action{}, fmt.Errorf("bot: action %q requires an index", kind)
	}
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 {
		return Action{}, fmt.Errorf("bot: action %q: bad index %q", kind, arg)
	}
	return Choose(k, idx), nil
}

// RequireStep reports whether the action is valid at the session's current
// step.
func RequireStep(s *session.Session, a Action) bool {
	steps, gated := requiredSteps[a.Kind]
	if !gated {
		return true
	}
	return s.Is(steps...)
}

// flowOf returns the flow an action belongs to, used to word the restart
// hint when the action is rejected.
func flowOf(kind ActionKind) session.Flow {
	steps := requiredSteps[kind]
	if len(steps) == 0 {
		return session.FlowNone
	}
	return steps[0].Flow()
}

// Package session holds per-conversation state: the current step of a
// multi-step flow, the flow's working data, and its persistence.
package session

import "strings"

// Step is a position in a conversation flow.
type Step string

// Idle is the resting step outside every flow.
const Idle Step = "IDLE"

// Status check flow.
const (
	CheckSelect         Step = "CHECK_SELECT"
	CheckActions        Step = "CHECK_ACTIONS"
	CheckConfirmReboot  Step = "CHECK_CONFIRM_REBOOT"
	CheckSelectCapacity Step = "CHECK_SELECT_CAPACITY"
)

// Provisioning wizard.
const (
	ProvisionSelectOLT       Step = "PROVISION_SELECT_OLT"
	ProvisionSelectDevice    Step = "PROVISION_SELECT_DEVICE"
	ProvisionSelectCustomer  Step = "PROVISION_SELECT_CUSTOMER"
	ProvisionSelectModem     Step = "PROVISION_SELECT_MODEM"
	ProvisionConfirmPortLock Step = "PROVISION_CONFIRM_PORT_LOCK"
	ProvisionConfirm         Step = "PROVISION_CONFIRM"
)

// Reconfiguration wizard.
const (
	ReconfigWaitingQuery    Step = "RECONFIG_WAITING_QUERY"
	ReconfigSelectCustomer  Step = "RECONFIG_SELECT_CUSTOMER"
	ReconfigConfirmDelete   Step = "RECONFIG_CONFIRM_DELETE"
	ReconfigSelectDevice    Step = "RECONFIG_SELECT_DEVICE"
	ReconfigSelectModem     Step = "RECONFIG_SELECT_MODEM"
	ReconfigConfirmPortLock Step = "RECONFIG_CONFIRM_PORT_LOCK"
	ReconfigConfirm         Step = "RECONFIG_CONFIRM"
)

// Ticket creation flow.
const (
	TicketWaitingQuery       Step = "TICKET_WAITING_QUERY"
	TicketSelectCustomer     Step = "TICKET_SELECT_CUSTOMER"
	TicketWaitingDescription Step = "TICKET_WAITING_DESCRIPTION"
)

// Billing lookup flow.
const (
	BillingSelectCustomer Step = "BILLING_SELECT_CUSTOMER"
)

// Flow names a family of steps sharing one payload.
type Flow string

// Flows.
const (
	FlowNone      Flow = ""
	FlowCheck     Flow = "check"
	FlowProvision Flow = "provision"
	FlowReconfig  Flow = "reconfig"
	FlowTicket    Flow = "ticket"
	FlowBilling   Flow = "billing"
)

var flowPrefixes = []struct {
	prefix string
	flow   Flow
}{
	{"CHECK_", FlowCheck},
	{"PROVISION_", FlowProvision},
	{"RECONFIG_", FlowReconfig},
	{"TICKET_", FlowTicket},
	{"BILLING_", FlowBilling},
}

// Flow returns the flow a step belongs to. Idle and unknown steps belong
// to FlowNone.
func (s Step) Flow() Flow {
	for _, fp := range flowPrefixes {
		if strings.HasPrefix(string(s), fp.prefix) {
			return fp.flow
		}
	}
	return FlowNone
}

// Known reports whether s is one of the declared steps.
func (s Step) Known() bool {
	_, ok := knownSteps[s]
	return ok
}

// AwaitsText reports whether the step consumes the next free-text message.
func (s Step) AwaitsText() bool {
	switch s {
	case ReconfigWaitingQuery, TicketWaitingQuery, TicketWaitingDescription:
		return true
	}
	return false
}

var knownSteps = map[Step]struct{}{
	Idle: {},

	CheckSelect: {}, CheckActions: {}, CheckConfirmReboot: {}, CheckSelectCapacity: {},

	ProvisionSelectOLT: {}, ProvisionSelectDevice: {}, ProvisionSelectCustomer: {},
	ProvisionSelectModem: {}, ProvisionConfirmPortLock: {}, ProvisionConfirm: {},

	ReconfigWaitingQuery: {}, ReconfigSelectCustomer: {}, ReconfigConfirmDelete: {},
	ReconfigSelectDevice: {}, ReconfigSelectModem: {}, ReconfigConfirmPortLock: {},
	ReconfigConfirm: {},

	TicketWaitingQuery: {}, TicketSelectCustomer: {}, TicketWaitingDescription: {},

	BillingSelectCustomer: {},
}

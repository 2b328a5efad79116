package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FlexString decodes a JSON string, number or boolean into its text form.
// The API is not consistent about quoting identifiers such as PON ports.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case data[0] == '{' || data[0] == '[':
		return fmt.Errorf("backend: cannot decode %s into a string", firstBytes(data, 16))
	default:
		*f = FlexString(data)
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

// Options is the response of the configuration options endpoint.
type Options struct {
	OLTs []string `json:"olt_options"`
}

// Device is an unconfigured ONT discovered on an OLT.
type Device struct {
	SN      string     `json:"sn"`
	PONPort FlexString `json:"pon_port"`
	PONSlot FlexString `json:"pon_slot"`
}

// Label is the short button label for a device.
func (d Device) Label() string {
	sn := d.SN
	if len(sn) > 8 {
		sn = sn[:8]
	}
	return fmt.Sprintf("%s:%s | %s", d.PONPort, d.PONSlot, sn)
}

// Customer is a subscriber record as returned by the search and
// provisioning endpoints.
type Customer struct {
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	PPPoEUser string `json:"pppoe_user,omitempty"`
	PPPoEPass string `json:"pppoe_password,omitempty"`
	Package   string `json:"package,omitempty"`
	OLT       string `json:"olt_name,omitempty"`
	Interface string `json:"interface,omitempty"`
}

// UnmarshalJSON accepts the alternate member names some endpoints use
// (user_pppoe, pppoe_pass, paket).
func (c *Customer) UnmarshalJSON(data []byte) error {
	type plain Customer
	var aux struct {
		plain
		UserPPPoE    string     `json:"user_pppoe"`
		PPPoEPassAlt string     `json:"pppoe_pass"`
		Paket        FlexString `json:"paket"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Customer(aux.plain)
	if c.PPPoEUser == "" {
		c.PPPoEUser = aux.UserPPPoE
	}
	if c.PPPoEPass == "" {
		c.PPPoEPass = aux.PPPoEPassAlt
	}
	if c.Package == "" {
		c.Package = string(aux.Paket)
	}
	return nil
}

// HasDevice reports whether the record locates an installed ONT.
func (c Customer) HasDevice() bool {
	return c.OLT != "" && c.Interface != ""
}

// Label is the short button label for a customer.
func (c Customer) Label() string {
	name := c.Name
	if name == "" {
		name = "N/A"
	}
	if r := []rune(name); len(r) > 20 {
		name = string(r[:20])
	}
	user := c.PPPoEUser
	if user == "" {
		user = "N/A"
	}
	return name + " | " + user
}

// BillingRecord is a subscriber's billing summary.
type BillingRecord struct {
	Name        string          `json:"name"`
	Address     string          `json:"address,omitempty"`
	PPPoEUser   string          `json:"pppoe_user,omitempty"`
	Package     string          `json:"package,omitempty"`
	LastPayment FlexString      `json:"last_payment,omitempty"`
	Invoices    json.RawMessage `json:"invoices,omitempty"`
}

// UnmarshalJSON accepts the alternate member names some endpoints use.
func (b *BillingRecord) UnmarshalJSON(data []byte) error {
	type plain BillingRecord
	var aux struct {
		plain
		UserPPPoE string     `json:"user_pppoe"`
		Paket     FlexString `json:"paket"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = BillingRecord(aux.plain)
	if b.PPPoEUser == "" {
		b.PPPoEUser = aux.UserPPPoE
	}
	if b.Package == "" {
		b.Package = string(aux.Paket)
	}
	return nil
}

// InvoiceLines renders the invoices member: a string is returned as-is, a
// list becomes numbered lines using each entry's amount or total, anything
// else is returned as compact JSON. It returns "" when there are none.
func (b BillingRecord) InvoiceLines() string {
	raw := bytes.TrimSpace(b.Invoices)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			lines := make([]string, 0, len(items))
			for i, it := range items {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, invoiceAmount(it)))
			}
			return strings.Join(lines, "\n")
		}
	}
	return string(raw)
}

func invoiceAmount(raw json.RawMessage) string {
	var inv struct {
		Amount FlexString `json:"amount"`
		Total  FlexString `json:"total"`
	}
	if err := json.Unmarshal(raw, &inv); err == nil {
		if inv.Amount != "" {
			return string(inv.Amount)
		}
		if inv.Total != "" {
			return string(inv.Total)
		}
	}
	return ResultText(raw)
}

// ConfigureCustomer is the subscriber block of a configure request.
type ConfigureCustomer struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	PPPoEUser string `json:"pppoe_user"`
	PPPoEPass string `json:"pppoe_pass"`
}

// ConfigureRequest registers an ONT on an OLT for a subscriber.
type ConfigureRequest struct {
	SN        string            `json:"sn"`
	Customer  ConfigureCustomer `json:"customer"`
	Package   string            `json:"package"`
	ModemType string            `json:"modem_type"`
	EthLocks  []bool            `json:"eth_locks"`
}

// Ticket is one trouble-ticket search hit. The search endpoint returns loose
// records, so well-known members are lifted out and the rest kept in Fields.
type Ticket struct {
	ID       string
	Customer string
	Status   string
	Subject  string
	Fields   map[string]string
}

var (
	ticketIDKeys       = []string{"ticket_id", "no_ticket", "id", "ticket"}
	ticketCustomerKeys = []string{"customer", "name", "nama", "pelanggan"}
	ticketStatusKeys   = []string{"status", "state"}
	ticketSubjectKeys  = []string{"subject", "description", "deskripsi", "keluhan"}
)

// UnmarshalJSON implements json.Unmarshaler.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.Fields = make(map[string]string, len(m))
	for k, v := range m {
		t.Fields[k] = ResultText(v)
	}
	pick := func(keys []string) string {
		for _, k := range keys {
			if v := t.Fields[k]; v != "" {
				return v
			}
		}
		return ""
	}
	t.ID = pick(ticketIDKeys)
	t.Customer = pick(ticketCustomerKeys)
	t.Status = pick(ticketStatusKeys)
	t.Subject = pick(ticketSubjectKeys)
	return nil
}

// Summary renders a ticket on one or more lines.
func (t Ticket) Summary() string {
	var parts []string
	if t.ID != "" {
		parts = append(parts, "#"+t.ID)
	}
	if t.Customer != "" {
		parts = append(parts, t.Customer)
	}
	if t.Status != "" {
		parts = append(parts, "["+t.Status+"]")
	}
	line := strings.Join(parts, " ")
	if t.Subject != "" {
		if line != "" {
			line += "\n"
		}
		line += t.Subject
	}
	if line == "" {
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+t.Fields[k])
		}
		line = strings.Join(lines, "\n")
	}
	return line
}

// TicketRequest creates a ticket for the subscriber matching Query.
type TicketRequest struct {
	Query       string `json:"query"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Type        string `json:"jenis"`
	Headless    bool   `json:"headless"`
}

// TicketUpdateRequest closes or forwards an existing ticket.
type TicketUpdateRequest struct {
	Query    string `json:"query"`
	Note     string `json:"note,omitempty"`
	Headless bool   `json:"headless"`
}

// TicketResult is the response of a ticket mutation.
type TicketResult struct {
	Success  *bool      `json:"success,omitempty"`
	Message  string     `json:"message"`
	TicketID FlexString `json:"ticket_id,omitempty"`
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
)

// SplitTicketInput separates the arguments of an "open" command into a
// customer query and an optional problem description. With three or more
// words, if any word after the first two is a problem keyword, the first
// two words are the query and the rest the description; otherwise
// everything is the query. The rule is a heuristic and can misclassify.
func SplitTicketInput(args string, keywords []string) (query, description string) {
	words := strings.Fields(args)
	if len(words) == 0 {
		return "", ""
	}
	if len(words) >= 3 {
		rest := words[2:]
		for _, w := range rest {
			if containsFold(keywords, w) {
				return strings.Join(words[:2], " "), strings.Join(rest, " ")
			}
		}
	}
	return strings.Join(words, " "), ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// startTicket is the "open" entry point.
func (r *Router) startTicket(t *turn, args string) {
	t.s.Reset()
	query, desc := SplitTicketInput(args, r.cfg.Ticket.Keywords)
	if query == "" {
		t.s.Transition(session.TicketWaitingQuery, t.now)
		r.reply(t, "Masukkan nama atau user PPPoE pelanggan:", [][]Button{cancelRow()})
		return
	}
	r.reply(t, fmt.Sprintf("Mencari data untuk: %s...", query), nil)
	r.ticketSearch(t, query, desc, false)
}

func (r *Router) ticketQuery(t *turn, text string) {
	r.reply(t, fmt.Sprintf("Mencari data untuk: %s...", text), nil)
	r.ticketSearch(t, text, "", true)
}

// ticketSearch resolves the customer for a new ticket. An unknown customer
// is not an error: the raw query becomes the ticket subject.
func (r *Router) ticketSearch(t *turn, query, desc string, waiting bool) {
	results, err := r.api.SearchCustomers(t.ctx, query)
	if err != nil {
		if waiting {
			r.reply(t, FormatError(err), [][]Button{cancelRow()})
			return
		}
		t.s.Reset()
		r.reply(t, FormatError(err), mainMenuKeyboard())
		return
	}

	switch len(results) {
	case 0:
		if desc != "" {
			r.createTicket(t, query, desc, nil, false)
			return
		}
		t.s.Transition(session.TicketWaitingDescription, t.now)
		td := t.s.TicketState()
		td.Query = query
		td.Customer = nil
		r.reply(t, fmt.Sprintf("Pelanggan tidak ditemukan, tiket akan dibuat dengan query: %s\n\nMasukkan kendala/deskripsi:", query),
			[][]Button{cancelRow()})
	case 1:
		c := results[0]
		if desc != "" {
			r.createTicket(t, ticketQueryFor(c, query), desc, &c, false)
			return
		}
		r.askTicketDescription(t, c, query)
	default:
		cands := capList(results, r.cfg.Session.ListLimit)
		t.s.Transition(session.TicketSelectCustomer, t.now)
		td := t.s.TicketState()
		td.Query = query
		td.Description = desc
		td.Candidates = cands
		r.reply(t, fmt.Sprintf("Ditemukan %d pelanggan. Pilih:", len(results)), customerKeyboard(cands, ActTicketSelect))
	}
}

// askTicketDescription selects c and waits for the problem description.
func (r *Router) askTicketDescription(t *turn, c backend.Customer, query string) {
	t.s.Transition(session.TicketWaitingDescription, t.now)
	td := t.s.TicketState()
	td.Candidates = nil
	td.Customer = &c
	td.Query = ticketQueryFor(c, query)
	r.reply(t, fmt.Sprintf("Pelanggan: %s\nPPPoE: %s\n\nAlamat: %s\n\nMasukkan kendala/deskripsi:",
		orNA(c.Name), orNA(c.PPPoEUser), orNA(c.Address)), [][]Button{cancelRow()})
}

func (r *Router) ticketSelect(t *turn, a Action) {
	td := t.s.Ticket
	if td == nil {
		r.expired(t, session.FlowTicket)
		return
	}
	c, ok := session.Pick(td.Candidates, a.Index)
	if !ok {
		r.expired(t, session.FlowTicket)
		return
	}
	if td.Description != "" {
		r.reply(t, "Dipilih: "+orNA(c.Name), nil)
		r.createTicket(t, ticketQueryFor(c, td.Query), td.Description, &c, true)
		return
	}
	r.askTicketDescription(t, c, td.Query)
}

func (r *Router) ticketDescription(t *turn, text string) {
	td := t.s.Ticket
	if td == nil || td.Query == "" {
		t.s.Reset()
		r.expired(t, session.FlowTicket)
		return
	}
	r.createTicket(t, td.Query, text, td.Customer, true)
}

// createTicket files the ticket. When retryable is set a failure keeps the
// current step; otherwise the session returns to idle.
func (r *Router) createTicket(t *turn, query, desc string, c *backend.Customer, retryable bool) {
	r.reply(t, fmt.Sprintf("Membuat tiket untuk: %s...", query), nil)

	started := r.now()
	res, err := r.api.CreateTicket(t.ctx, backend.TicketRequest{
		Query:       query,
		Description: desc,
		Priority:    r.cfg.Ticket.Priority,
		Type:        r.cfg.Ticket.Type,
		Headless:    true,
	})
	if err == nil && res.Success != nil && !*res.Success {
		err = errors.New(orDefault(res.Message, "ticket rejected"))
	}
	r.record(t, "ticket_create", "", "", query, started, err)
	if err != nil {
		if !retryable {
			t.s.Reset()
		}
		r.reply(t, "Gagal membuat tiket: "+FormatError(err), nil)
		return
	}

	t.s.Reset()
	name, user := query, ""
	if c != nil {
		name, user = orDefault(c.Name, query), c.PPPoEUser
	}
	var b strings.Builder
	b.WriteString("Tiket berhasil dibuat\n\n")
	if res.TicketID != "" {
		fmt.Fprintf(&b, "No. Tiket: %s\n", res.TicketID)
	}
	fmt.Fprintf(&b, "Pelanggan: %s\nPPPoE: %s\nKendala: %s\n", name, orNA(user), desc)
	b.WriteString(res.Message)
	r.reply(t, strings.TrimRight(b.String(), "\n"), nil)
}

// ticketQueryFor prefers the customer's PPPoE user as the ticket query.
func ticketQueryFor(c backend.Customer, fallback string) string {
	if c.PPPoEUser != "" {
		return c.PPPoEUser
	}
	return orDefault(c.Name, fallback)
}

// searchTickets handles /tiket. It does not touch the session.
func (r *Router) searchTickets(t *turn, query string) {
	if query == "" {
		r.reply(t, "Gunakan: /tiket <nama/pppoe/no tiket>", nil)
		return
	}
	tickets, err := r.api.SearchTickets(t.ctx, query)
	if err != nil {
		r.reply(t, FormatError(err), nil)
		return
	}
	if len(tickets) == 0 {
		r.reply(t, fmt.Sprintf("Tidak ada tiket untuk: %s", query), nil)
		return
	}
	shown := capList(tickets, r.cfg.Session.ListLimit)
	parts := make([]string, 0, len(shown)+1)
	parts = append(parts, fmt.Sprintf("🎫 Ditemukan %d tiket:", len(tickets)))
	for i, tk := range shown {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, tk.Summary()))
	}
	r.reply(t, strings.Join(parts, "\n\n"), nil)
}

func (r *Router) closeTicket(t *turn, args string) {
	r.updateTicket(t, args, "close", "ticket_close", r.api.CloseTicket)
}

func (r *Router) forwardTicket(t *turn, args string) {
	r.updateTicket(t, args, "forward", "ticket_forward", r.api.ForwardTicket)
}

// updateTicket handles /close and /forward: "<ticket> [note]".
func (r *Router) updateTicket(t *turn, args, verb, action string,
	call func(ctx context.Context, req backend.TicketUpdateRequest) (*backend.TicketResult, error)) {
	id, note := splitCommand(args)
	if id == "" {
		r.reply(t, fmt.Sprintf("Gunakan: /%s <no tiket/pppoe> [catatan]", verb), nil)
		return
	}
	started := r.now()
	res, err := call(t.ctx, backend.TicketUpdateRequest{Query: id, Note: note, Headless: true})
	if err == nil && res.Success != nil && !*res.Success {
		err = errors.New(orDefault(res.Message, "request rejected"))
	}
	r.record(t, action, "", "", id, started, err)
	if err != nil {
		r.reply(t, FormatError(err), nil)
		return
	}
	r.reply(t, fmt.Sprintf("✅ Tiket %s: %s\n%s", id, verb, res.Message), nil)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

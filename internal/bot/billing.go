package bot

import (
	"fmt"
	"strings"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
	"go.uber.org/zap"
)

// startBilling is the "link" entry point. A single search hit is looked up
// by its PPPoE user; several hits are offered for selection; no hit (or a
// failed search) falls back to looking up the raw query directly.
func (r *Router) startBilling(t *turn, query string) {
	if query == "" {
		r.reply(t, "❌ Format salah. Gunakan: `link <nama/pppoe>`", nil)
		return
	}
	t.s.Reset()
	r.reply(t, fmt.Sprintf("🔍 Mencari data untuk: *%s*...", query), nil)

	results, err := r.api.SearchCustomers(t.ctx, query)
	if err != nil {
		t.log.Info("billing search failed, trying direct lookup", zap.Error(err))
		results = nil
	}
	switch {
	case len(results) == 1:
		r.billingLookup(t, billingKey(results[0]), query, nil)
	case len(results) > 1:
		cands := capList(results, r.cfg.Session.ListLimit)
		t.s.Transition(session.BillingSelectCustomer, t.now)
		bd := t.s.BillingState()
		bd.Query = query
		bd.Candidates = cands
		r.reply(t, fmt.Sprintf("📋 Ditemukan %d pelanggan. Pilih:", len(results)),
			customerKeyboard(cands, ActBillingSelect))
	default:
		r.billingLookup(t, query, "", nil)
	}
}

func (r *Router) billingSelect(t *turn, a Action) {
	bd := t.s.Billing
	if bd == nil {
		r.expired(t, session.FlowBilling)
		return
	}
	c, ok := session.Pick(bd.Candidates, a.Index)
	if !ok {
		r.expired(t, session.FlowBilling)
		return
	}
	r.billingLookup(t, billingKey(c), bd.Query, customerKeyboard(bd.Candidates, ActBillingSelect))
}

// billingLookup fetches and renders the billing record for key, then for
// fallback when key finds nothing. A transport failure with a retry
// keyboard keeps the current step; every other outcome ends the flow.
func (r *Router) billingLookup(t *turn, key, fallback string, retry [][]Button) {
	rec, err := r.fetchBilling(t, key)
	if rec == nil && fallback != "" && fallback != key {
		var ferr error
		rec, ferr = r.fetchBilling(t, fallback)
		if err == nil {
			err = ferr
		}
	}
	if rec == nil {
		if err != nil && !backend.IsNotFound(err) {
			if retry != nil {
				r.reply(t, FormatError(err), retry)
				return
			}
			t.s.Reset()
			r.reply(t, FormatError(err), nil)
			return
		}
		t.s.Reset()
		r.reply(t, fmt.Sprintf("❌ Data tidak ditemukan: `%s`", orDefault(fallback, key)), nil)
		return
	}

	t.s.Reset()
	summary, invoices := FormatBilling(*rec)
	r.reply(t, summary, nil)
	if invoices != "" {
		r.reply(t, invoices, nil)
	}
}

func (r *Router) fetchBilling(t *turn, query string) (*backend.BillingRecord, error) {
	if query == "" {
		return nil, nil
	}
	records, err := r.api.Billing(t.ctx, query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// billingKey is the value the billing endpoint is queried with for c.
func billingKey(c backend.Customer) string {
	return orDefault(c.PPPoEUser, c.Name)
}

// FormatBilling renders a billing record as the summary message and the
// invoices message, which is empty when there are none.
func FormatBilling(rec backend.BillingRecord) (string, string) {
	lines := []string{
		"*" + orNA(rec.Name) + "*",
		orNA(rec.Address),
		"",
		"Paket: " + orNA(rec.Package),
		"Terakhir Bayar: " + orNA(string(rec.LastPayment)),
	}
	return strings.Join(lines, "\n"), rec.InvoiceLines()
}

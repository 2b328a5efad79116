package bot

import (
	"fmt"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
)

// startReconfig is the /cu entry point. Without a query it waits for one.
func (r *Router) startReconfig(t *turn, query string) {
	t.s.Reset()
	if query == "" {
		t.s.Transition(session.ReconfigWaitingQuery, t.now)
		r.reply(t, "Masukkan nama atau user PPPoE pelanggan:", [][]Button{cancelRow()})
		return
	}
	r.reconfigSearch(t, query, false)
}

// reconfigSearch looks up the customer to reconfigure. When the query was
// typed in RECONFIG_WAITING_QUERY a failed search leaves the step in place
// so the user can type again.
func (r *Router) reconfigSearch(t *turn, query string, waiting bool) {
	r.reply(t, fmt.Sprintf("🔍 Mencari data untuk: %s...", query), nil)
	results, err := r.api.SearchCustomers(t.ctx, query)
	if err != nil {
		if waiting {
			r.reply(t, FormatError(err), [][]Button{cancelRow()})
			return
		}
		r.reply(t, FormatError(err), nil)
		t.s.Reset()
		return
	}
	switch len(results) {
	case 0:
		t.s.Reset()
		r.reply(t, msgNotFound, nil)
	case 1:
		r.enterReconfig(t, results[0])
	default:
		cands := capList(results, r.cfg.Session.ListLimit)
		t.s.Transition(session.ReconfigSelectCustomer, t.now)
		t.s.ReconfigState().Candidates = cands
		r.reply(t, fmt.Sprintf("📋 Ditemukan %d pelanggan. Pilih:", len(results)),
			customerKeyboard(cands, ActReconfigSelect))
	}
}

func (r *Router) reconfigSelect(t *turn, a Action) {
	if t.s.Reconfig == nil {
		r.expired(t, session.FlowReconfig)
		return
	}
	c, ok := session.Pick(t.s.Reconfig.Candidates, a.Index)
	if !ok {
		r.expired(t, session.FlowReconfig)
		return
	}
	r.enterReconfig(t, c)
}

// enterReconfig asks whether to remove the customer's current ONT before
// registering a new one.
func (r *Router) enterReconfig(t *turn, c backend.Customer) {
	if !c.HasDevice() {
		t.s.Reset()
		r.reply(t, msgNoDevice, nil)
		return
	}
	t.s.Transition(session.ReconfigConfirmDelete, t.now)
	w := t.s.ReconfigState()
	w.Candidates = nil
	w.Customer = &c
	w.OLT = c.OLT
	r.reply(t, fmt.Sprintf("⚠️ *Konfirmasi Config Ulang*\n\nPelanggan: %s\nOLT: %s\nInterface: %s\n\nHapus ONU lama sebelum config ulang?",
		orNA(c.Name), c.OLT, c.Interface), deleteConfirmKeyboard())
}

// reconfigDelete removes the customer's current ONT. The removal is not
// undone if the wizard is later cancelled.
func (r *Router) reconfigDelete(t *turn) {
	w := t.s.Reconfig
	if w == nil || w.Customer == nil {
		r.expired(t, session.FlowReconfig)
		return
	}
	c := *w.Customer

	r.reply(t, "⏳ Menghapus ONU lama...", nil)
	started := r.now()
	out, err := r.api.Remove(t.ctx, c.OLT, c.Interface)
	r.record(t, string(backend.OpRemove), c.OLT, c.Interface, c.PPPoEUser, started, err)
	if err != nil {
		r.reply(t, FormatError(err), deleteConfirmKeyboard())
		return
	}
	w.Removed = true
	t.s.Transition(session.ReconfigSelectDevice, t.now)
	r.reply(t, codeBlock("🗑 ONU lama dihapus", CleanDeviceOutput(out)), nil)
	r.scanDevices(t, w, w.OLT, session.ReconfigSelectDevice, deviceRefreshKeyboard())
}

func (r *Router) reconfigKeep(t *turn) {
	w := t.s.Reconfig
	if w == nil || w.Customer == nil {
		r.expired(t, session.FlowReconfig)
		return
	}
	t.s.Transition(session.ReconfigSelectDevice, t.now)
	r.scanDevices(t, w, w.OLT, session.ReconfigSelectDevice, deviceRefreshKeyboard())
}

package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
)

// checkQuery describes a read-only device query offered in CHECK_ACTIONS.
type checkQuery struct {
	name   string
	call   func(API, context.Context, string, string) (string, error)
	render func(out string) string
}

var checkQueries = map[ActionKind]checkQuery{
	ActCheckStatus: {name: "status", call: API.Status},
	ActCheckSignal: {name: "redaman", call: API.Signal, render: SummarizeSignal},
	ActCheckPortState: {name: "status port", call: API.PortState, render: func(out string) string {
		return codeBlock("Port State", CleanDeviceOutput(out))
	}},
	ActCheckConfig: {name: "config", call: API.RunningConfig, render: func(out string) string {
		return codeBlock("Running Config", CleanDeviceOutput(out))
	}},
	ActCheckBandwidth: {name: "bandwidth", call: API.Bandwidth, render: func(out string) string {
		return codeBlock("Bandwidth (DBA)", CleanDeviceOutput(out))
	}},
	ActCheckEth: {name: "status eth", call: API.EthStatus, render: func(out string) string {
		return codeBlock("Status ETH", CleanDeviceOutput(out))
	}},
}

// startCheck is the /cek entry point: search the customer and either show
// the candidates or go straight to the device actions.
func (r *Router) startCheck(t *turn, query string) {
	if query == "" {
		r.reply(t, "Gunakan: /cek <nama/pppoe>", nil)
		return
	}
	t.s.Reset()

	results, err := r.api.SearchCustomers(t.ctx, query)
	if err != nil {
		r.reply(t, FormatError(err), nil)
		return
	}
	switch len(results) {
	case 0:
		r.reply(t, msgNotFound, nil)
	case 1:
		c := results[0]
		t.s.Transition(session.CheckActions, t.now)
		t.s.CheckState().Customer = &c
		r.reply(t, fmt.Sprintf("Ditemukan: %s\n⏳ Mengecek status ONU...", c.Name), nil)
		r.checkQuery(t, ActCheckStatus)
	default:
		cands := capList(results, r.cfg.Session.ListLimit)
		t.s.Transition(session.CheckSelect, t.now)
		t.s.CheckState().Candidates = cands
		r.reply(t, fmt.Sprintf("📋 Ditemukan %d pelanggan. Pilih:", len(results)),
			customerKeyboard(cands, ActCheckSelect))
	}
}

func (r *Router) checkSelect(t *turn, a Action) {
	if t.s.Check == nil {
		r.expired(t, session.FlowCheck)
		return
	}
	c, ok := session.Pick(t.s.Check.Candidates, a.Index)
	if !ok {
		r.expired(t, session.FlowCheck)
		return
	}
	t.s.Transition(session.CheckActions, t.now)
	t.s.Check.Candidates = nil
	t.s.Check.Customer = &c
	r.reply(t, fmt.Sprintf("✅ Dipilih: %s\n⏳ Mengecek status ONU...", c.Name), nil)
	r.checkQuery(t, ActCheckStatus)
}

// checkCustomer returns the selected customer when it locates a device.
func (r *Router) checkCustomer(t *turn) (backend.Customer, bool) {
	if t.s.Check == nil || t.s.Check.Customer == nil {
		r.expired(t, session.FlowCheck)
		return backend.Customer{}, false
	}
	c := *t.s.Check.Customer
	if !c.HasDevice() {
		r.reply(t, msgNoDevice, checkActionsKeyboard())
		return backend.Customer{}, false
	}
	return c, true
}

// checkQuery runs a read-only device query and remembers it for Refresh.
func (r *Router) checkQuery(t *turn, kind ActionKind) {
	q, ok := checkQueries[kind]
	if !ok {
		return
	}
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	t.s.Check.LastAction = string(kind)

	out, err := q.call(r.api, t.ctx, c.OLT, c.Interface)
	if err != nil {
		r.reply(t, FormatError(err), checkActionsKeyboard())
		return
	}
	if q.render != nil {
		r.reply(t, q.render(out), checkActionsKeyboard())
		return
	}

	detail, att := SplitStatus(out)
	if detail != "" {
		r.reply(t, codeBlock("Detail Data", detail), nil)
	}
	if att != "" {
		r.reply(t, codeBlock("Attenuation Data", att), checkActionsKeyboard())
		return
	}
	r.reply(t, "Pilih aksi:", checkActionsKeyboard())
}

func (r *Router) checkRefresh(t *turn) {
	if t.s.Check == nil {
		r.expired(t, session.FlowCheck)
		return
	}
	last := ActionKind(t.s.Check.LastAction)
	q, ok := checkQueries[last]
	if !ok {
		r.reply(t, "Tidak ada aksi sebelumnya.", checkActionsKeyboard())
		return
	}
	r.reply(t, fmt.Sprintf("🔄 Mengulangi: %s...", q.name), nil)
	r.checkQuery(t, last)
}

func (r *Router) checkReboot(t *turn) {
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	t.s.Transition(session.CheckConfirmReboot, t.now)
	r.reply(t, fmt.Sprintf("⚠️ *Konfirmasi Reboot ONU*\n\nPelanggan: %s\nInterface: %s\n\nApakah Anda yakin ingin reboot ONU?",
		c.Name, c.Interface), rebootConfirmKeyboard())
}

func (r *Router) checkRebootConfirm(t *turn) {
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	r.reply(t, "⏳ Rebooting ONU...", nil)
	started := r.now()
	out, err := r.api.Reboot(t.ctx, c.OLT, c.Interface)
	r.record(t, string(backend.OpReboot), c.OLT, c.Interface, c.PPPoEUser, started, err)
	if err != nil {
		r.reply(t, FormatError(err), rebootConfirmKeyboard())
		return
	}
	t.s.Transition(session.CheckActions, t.now)
	r.reply(t, codeBlock("✅ Reboot Berhasil", CleanDeviceOutput(out)), checkActionsKeyboard())
}

func (r *Router) checkLock(t *turn, unlocked bool) {
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	started := r.now()
	out, err := r.api.LockPorts(t.ctx, c.OLT, c.Interface, unlocked)
	r.record(t, string(backend.OpLockPorts), c.OLT, c.Interface, fmt.Sprintf("unlocked=%t", unlocked), started, err)
	if err != nil {
		r.reply(t, FormatError(err), checkActionsKeyboard())
		return
	}
	title := "🔒 Port LAN dikunci"
	if unlocked {
		title = "🔓 Port LAN dibuka"
	}
	r.reply(t, codeBlock(title, CleanDeviceOutput(out)), checkActionsKeyboard())
}

func (r *Router) checkCapacity(t *turn) {
	if _, ok := r.checkCustomer(t); !ok {
		return
	}
	t.s.Transition(session.CheckSelectCapacity, t.now)
	r.reply(t, "📶 Pilih kapasitas baru:", capacityKeyboard(r.cfg.Provisioning.Capacities))
}

func (r *Router) checkCapacityPick(t *turn, a Action) {
	capacity, ok := session.Pick(r.cfg.Provisioning.Capacities, a.Index)
	if !ok {
		r.expired(t, session.FlowCheck)
		return
	}
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	r.reply(t, fmt.Sprintf("⏳ Mengubah kapasitas ke %s...", capacity), nil)
	started := r.now()
	out, err := r.api.ChangeCapacity(t.ctx, c.OLT, c.Interface, capacity)
	r.record(t, string(backend.OpChangeCapacity), c.OLT, c.Interface, capacity, started, err)
	if err != nil {
		r.reply(t, FormatError(err), capacityKeyboard(r.cfg.Provisioning.Capacities))
		return
	}
	t.s.Transition(session.CheckActions, t.now)
	r.reply(t, codeBlock("✅ Kapasitas diubah ke "+capacity, CleanDeviceOutput(out)), checkActionsKeyboard())
}

// checkToReconfig hands the selected customer to the reconfiguration wizard.
func (r *Router) checkToReconfig(t *turn) {
	c, ok := r.checkCustomer(t)
	if !ok {
		return
	}
	r.enterReconfig(t, c)
}

// checkToTicket hands the selected customer to ticket creation.
func (r *Router) checkToTicket(t *turn) {
	if t.s.Check == nil || t.s.Check.Customer == nil {
		r.expired(t, session.FlowCheck)
		return
	}
	c := *t.s.Check.Customer
	fallback := strings.TrimSpace(c.OLT + " " + c.Interface)
	if ticketQueryFor(c, fallback) == "" {
		r.reply(t, msgTicketNoIdentity, checkActionsKeyboard())
		return
	}
	r.askTicketDescription(t, c, fallback)
}

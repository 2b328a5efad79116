package bot

import (
	"fmt"
	"strings"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
)

// startProvision is the /psb entry point: list the OLTs to choose from.
func (r *Router) startProvision(t *turn) {
	t.s.Reset()
	r.reply(t, "⏳ Mengambil daftar OLT...", nil)

	opts, err := r.api.Options(t.ctx)
	if err != nil {
		r.reply(t, FormatError(err), nil)
		return
	}
	if len(opts.OLTs) == 0 {
		r.reply(t, "⚠️ Tidak ada OLT yang tersedia.", nil)
		return
	}
	t.s.Transition(session.ProvisionSelectOLT, t.now)
	t.s.ProvisionState().OLTs = opts.OLTs
	r.reply(t, "📡 *Pilih OLT:*", oltKeyboard(opts.OLTs))
}

func (r *Router) provisionSelectOLT(t *turn, a Action) {
	w := t.s.Provision
	if w == nil {
		r.expired(t, session.FlowProvision)
		return
	}
	olt, ok := session.Pick(w.OLTs, a.Index)
	if !ok {
		r.expired(t, session.FlowProvision)
		return
	}
	r.scanDevices(t, w, olt, session.ProvisionSelectDevice, oltKeyboard(w.OLTs))
}

// wizard returns the payload of whichever wizard the session is in.
func wizard(s *session.Session) *session.WizardData {
	switch s.Flow() {
	case session.FlowProvision:
		return s.Provision
	case session.FlowReconfig:
		return s.Reconfig
	}
	return nil
}

// wizardStep maps a provisioning step to its counterpart in the flow the
// session is in.
func wizardStep(s *session.Session, provision, reconfig session.Step) session.Step {
	if s.Flow() == session.FlowReconfig {
		return reconfig
	}
	return provision
}

// scanDevices lists the unconfigured ONTs on olt and moves to step. On
// failure the session stays put and retry is offered as the keyboard.
func (r *Router) scanDevices(t *turn, w *session.WizardData, olt string, step session.Step, retry [][]Button) {
	r.reply(t, fmt.Sprintf("⏳ Scanning ONT di *%s*...", olt), nil)
	devices, err := r.api.DetectDevices(t.ctx, olt)
	if err != nil {
		r.reply(t, FormatError(err), retry)
		return
	}
	t.s.Transition(step, t.now)
	w.OLT = olt
	w.Devices = capList(devices, r.cfg.Provisioning.DeviceLimit)
	w.Device = nil

	if len(devices) == 0 {
		r.reply(t, fmt.Sprintf("⚠️ Tidak ada ONT unconfigured di %s.", olt), deviceRefreshKeyboard())
		return
	}
	r.reply(t, fmt.Sprintf("📡 *Pilih ONT* (Found: %d)", len(devices)), deviceKeyboard(w.Devices))
}

func (r *Router) wizardRefreshDevices(t *turn) {
	w := wizard(t.s)
	if w == nil || w.OLT == "" {
		r.expired(t, t.s.Flow())
		return
	}
	r.scanDevices(t, w, w.OLT, t.s.Step, deviceRefreshKeyboard())
}

func (r *Router) wizardSelectDevice(t *turn, a Action) {
	w := wizard(t.s)
	if w == nil {
		r.expired(t, t.s.Flow())
		return
	}
	d, ok := session.Pick(w.Devices, a.Index)
	if !ok {
		r.expired(t, t.s.Flow())
		return
	}

	if t.s.Flow() == session.FlowReconfig {
		w.Device = &d
		t.s.Transition(session.ReconfigSelectModem, t.now)
		r.reply(t, fmt.Sprintf("📱 *Pilih Tipe Modem*\nONT: `%s`\nUser: %s", d.SN, customerName(w.Customer)),
			modemKeyboard(r.cfg.Provisioning.Modems))
		return
	}

	r.reply(t, "⏳ Mengambil data pelanggan (PSB)...", nil)
	list, err := r.api.ProvisioningList(t.ctx)
	if err != nil {
		r.reply(t, FormatError(err), deviceKeyboard(w.Devices))
		return
	}
	if len(list) == 0 {
		r.reply(t, "⚠️ Tidak ada data pelanggan PSB.", deviceKeyboard(w.Devices))
		return
	}
	w.Device = &d
	w.Candidates = capList(list, r.cfg.Session.ListLimit)
	t.s.Transition(session.ProvisionSelectCustomer, t.now)
	r.reply(t, fmt.Sprintf("👤 *Pilih Pelanggan PSB*\nONT: `%s`", d.SN), customerKeyboard(w.Candidates, ActCustomer))
}

func (r *Router) provisionSelectCustomer(t *turn, a Action) {
	w := t.s.Provision
	if w == nil {
		r.expired(t, session.FlowProvision)
		return
	}
	c, ok := session.Pick(w.Candidates, a.Index)
	if !ok {
		r.expired(t, session.FlowProvision)
		return
	}
	w.Customer = &c
	w.Candidates = nil
	t.s.Transition(session.ProvisionSelectModem, t.now)
	r.reply(t, fmt.Sprintf("📱 *Pilih Tipe Modem*\nUser: %s", orNA(c.Name)), modemKeyboard(r.cfg.Provisioning.Modems))
}

func (r *Router) wizardSelectModem(t *turn, a Action) {
	w := wizard(t.s)
	if w == nil {
		r.expired(t, t.s.Flow())
		return
	}
	modem, ok := session.Pick(r.cfg.Provisioning.Modems, a.Index)
	if !ok {
		r.expired(t, t.s.Flow())
		return
	}
	w.Modem = modem
	t.s.Transition(wizardStep(t.s, session.ProvisionConfirmPortLock, session.ReconfigConfirmPortLock), t.now)
	r.reply(t, fmt.Sprintf("📱 Modem: *%s*\n\n🔌 *Kunci PORT LAN?*\nPilih untuk mengunci atau membuka semua port LAN.", modem),
		ethLockKeyboard())
}

func (r *Router) wizardPortLock(t *turn, lock bool) {
	w := wizard(t.s)
	if w == nil {
		r.expired(t, t.s.Flow())
		return
	}
	w.LockPorts = &lock
	t.s.Transition(wizardStep(t.s, session.ProvisionConfirm, session.ReconfigConfirm), t.now)
	r.reply(t, confirmText(w), confirmKeyboard())
}

// wizardConfirm registers the selected ONT for the selected customer and
// ends the wizard on success.
func (r *Router) wizardConfirm(t *turn) {
	flow := t.s.Flow()
	w := wizard(t.s)
	if w == nil || w.OLT == "" || w.Device == nil || w.Customer == nil || w.Modem == "" || w.LockPorts == nil {
		r.expired(t, flow)
		return
	}

	r.reply(t, "⏳ Proses konfigurasi... Harap tunggu.", nil)
	req := r.configureRequest(w)
	started := r.now()
	out, err := r.api.Configure(t.ctx, w.OLT, req)
	r.record(t, "configure", w.OLT, w.Customer.Interface, w.Device.SN, started, err)
	if err != nil {
		r.reply(t, "❌ *FAILED*\n"+FormatError(err), confirmKeyboard())
		return
	}
	if strings.TrimSpace(out) == "" {
		out = "Configured!"
	}
	t.s.Reset()
	r.reply(t, "✅ *SUCCESS*\n\n"+out, mainMenuKeyboard())
}

func (r *Router) configureRequest(w *session.WizardData) backend.ConfigureRequest {
	c := w.Customer
	pkg := c.Package
	if pkg == "" {
		pkg = r.cfg.Provisioning.DefaultPackage
	}
	return backend.ConfigureRequest{
		SN: w.Device.SN,
		Customer: backend.ConfigureCustomer{
			Name:      c.Name,
			Address:   c.Address,
			PPPoEUser: c.PPPoEUser,
			PPPoEPass: c.PPPoEPass,
		},
		Package:   pkg,
		ModemType: w.Modem,
		EthLocks:  []bool{*w.LockPorts},
	}
}

func confirmText(w *session.WizardData) string {
	lock := "🔓 Unlocked"
	if w.LockPorts != nil && *w.LockPorts {
		lock = "🔒 Locked"
	}
	sn := ""
	if w.Device != nil {
		sn = w.Device.SN
	}
	user := ""
	if w.Customer != nil {
		user = w.Customer.PPPoEUser
	}
	var b strings.Builder
	b.WriteString("✅ *Konfirmasi Config*\n\n")
	fmt.Fprintf(&b, "OLT: `%s`\n", w.OLT)
	fmt.Fprintf(&b, "SN: `%s`\n", orNA(sn))
	fmt.Fprintf(&b, "Nama: `%s`\n", customerName(w.Customer))
	fmt.Fprintf(&b, "PPPoE: `%s`\n", orNA(user))
	fmt.Fprintf(&b, "Modem: `%s`\n", w.Modem)
	fmt.Fprintf(&b, "ETH Lock: %s\n", lock)
	if w.Removed {
		b.WriteString("ONU lama: dihapus\n")
	}
	b.WriteString("\nEksekusi sekarang?")
	return b.String()
}

func customerName(c *backend.Customer) string {
	if c == nil {
		return "N/A"
	}
	return orNA(c.Name)
}

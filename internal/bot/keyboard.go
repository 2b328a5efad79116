package bot

import (
	"fmt"

	"github.com/fiberline/opsbot/internal/backend"
)

func button(label string, a Action) Button {
	return Button{Label: label, Action: a.String()}
}

func cancelRow() []Button {
	return []Button{button("❌ Cancel", NewAction(ActCancel))}
}

// listKeyboard renders one button per item, at most limit, followed by a
// Cancel row. Buttons carry the item's position in items.
func listKeyboard[T any](items []T, limit int, kind ActionKind, label func(T) string) [][]Button {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	rows := make([][]Button, 0, len(items)+1)
	for i, it := range items {
		rows = append(rows, []Button{button(label(it), Choose(kind, i))})
	}
	return append(rows, cancelRow())
}

func customerKeyboard(customers []backend.Customer, kind ActionKind) [][]Button {
	return listKeyboard(customers, 0, kind, backend.Customer.Label)
}

func deviceKeyboard(devices []backend.Device) [][]Button {
	return listKeyboard(devices, 0, ActDevice, backend.Device.Label)
}

func oltKeyboard(olts []string) [][]Button {
	return listKeyboard(olts, 0, ActOLT, func(olt string) string { return "📡 " + olt })
}

func modemKeyboard(modems []string) [][]Button {
	rows := make([][]Button, 0, len(modems)+1)
	for i, m := range modems {
		rows = append(rows, []Button{button(fmt.Sprintf("%d. %s", i+1, m), Choose(ActModem, i))})
	}
	return append(rows, cancelRow())
}

func capacityKeyboard(capacities []string) [][]Button {
	return listKeyboard(capacities, 0, ActCapacity, func(c string) string { return "📶 " + c })
}

func checkActionsKeyboard() [][]Button {
	return [][]Button{
		{button("Cek Status", NewAction(ActCheckStatus)), button("Cek Redaman", NewAction(ActCheckSignal))},
		{button("Status Port", NewAction(ActCheckPortState)), button("Cek Config", NewAction(ActCheckConfig))},
		{button("Bandwidth", NewAction(ActCheckBandwidth)), button("Status ETH", NewAction(ActCheckEth))},
		{button("🔒 Lock Port", NewAction(ActCheckLock)), button("🔓 Unlock Port", NewAction(ActCheckUnlock))},
		{button("Ganti Kapasitas", NewAction(ActCheckCapacity)), button("Reboot ONU", NewAction(ActCheckReboot))},
		{button("Config Ulang", NewAction(ActCheckReconfig)), button("Open Ticket", NewAction(ActCheckTicket))},
		{button("🔄 Refresh", NewAction(ActCheckRefresh)), button("Cancel", NewAction(ActCancel))},
	}
}

func rebootConfirmKeyboard() [][]Button {
	return [][]Button{{
		button("Ya, Reboot", NewAction(ActRebootConfirm)),
		button("Cancel", NewAction(ActCancel)),
	}}
}

func deviceRefreshKeyboard() [][]Button {
	return [][]Button{{
		button("🔄 Refresh", NewAction(ActDeviceRefresh)),
		button("❌ Cancel", NewAction(ActCancel)),
	}}
}

func ethLockKeyboard() [][]Button {
	return [][]Button{
		{button("🔒 Kunci semua port", NewAction(ActEthLock))},
		{button("🔓 Buka semua port", NewAction(ActEthUnlock))},
		cancelRow(),
	}
}

func confirmKeyboard() [][]Button {
	return [][]Button{{
		button("🚀 YA, EKSEKUSI", NewAction(ActConfirm)),
		button("❌ BATAL", NewAction(ActCancel)),
	}}
}

func deleteConfirmKeyboard() [][]Button {
	return [][]Button{
		{button("🗑 Hapus ONU lama", NewAction(ActReconfigDelete))},
		{button("⏭ Lewati", NewAction(ActReconfigKeep))},
		cancelRow(),
	}
}

func mainMenuKeyboard() [][]Button {
	return [][]Button{{button("⚙️ Config ONT", NewAction(ActMenu))}}
}

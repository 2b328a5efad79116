package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/session"
)

// User-facing messages shared by the flows.
const (
	msgSessionExpired   = "⚠️ Session expired."
	msgTimedOut         = "Sesi anda telah berakhir karena tidak ada aktivitas selama %s."
	msgRestarted        = "🔄 Bot dimulai ulang. Sesi anda telah direset, silakan mulai lagi."
	msgCancelled        = "🚫 Dibatalkan."
	msgNotFound         = "Pelanggan tidak ditemukan."
	msgNoDevice         = "⚠️ Data OLT/Interface tidak tersedia untuk pelanggan ini."
	msgUnknownCommand   = "Perintah tidak dikenal. Ketik /help untuk bantuan."
	msgTicketNoIdentity = "⚠️ Pelanggan ini tidak punya nama, PPPoE atau port. Gunakan open <nama/pppoe>."
)

// restartHints tells the user how to start each flow again.
var restartHints = map[session.Flow]string{
	session.FlowCheck:     "Gunakan /cek lagi.",
	session.FlowProvision: "Gunakan /psb untuk mulai ulang.",
	session.FlowReconfig:  "Gunakan /cu lagi.",
	session.FlowTicket:    "Gunakan open lagi.",
	session.FlowBilling:   "Gunakan link lagi.",
}

// expiredText is the reply to an action that does not match the session.
func expiredText(flow session.Flow) string {
	if hint := restartHints[flow]; hint != "" {
		return msgSessionExpired + " " + hint
	}
	return msgSessionExpired
}

// FormatError renders an error for the chat user. Backend errors are
// classified by kind; anything else is shown with a generic prefix.
func FormatError(err error) string {
	var apiErr *backend.Error
	if !errors.As(err, &apiErr) {
		return "❌ Error: " + err.Error()
	}
	switch apiErr.Kind {
	case backend.KindUpstream:
		if apiErr.IsValidation() {
			return "❌ Validation Error: " + strings.Join(apiErr.Details, ", ")
		}
		return "❌ API Error: " + apiErr.Message
	case backend.KindUnreachable:
		return "❌ Server tidak dapat dihubungi"
	case backend.KindTimeout:
		return "❌ Request timeout - server tidak merespons"
	case backend.KindDecode:
		return fmt.Sprintf("❌ Respon server tidak valid (%s)", apiErr.Op)
	default:
		return "❌ Network Error: " + apiErr.Message
	}
}

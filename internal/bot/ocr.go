package bot

import "strings"

// handlePhoto sends an attached image to the OCR endpoint and replies with
// the recognized text. It does not touch the session.
func (r *Router) handlePhoto(t *turn) {
	p := t.msg.Photo
	r.reply(t, "⏳ Memulai proses convert image to text...", nil)
	if len(p.Data) == 0 {
		r.reply(t, "Tidak dapat membaca gambar.", nil)
		return
	}
	name := p.FileName
	if name == "" {
		name = "image.jpg"
	}
	text, err := r.api.OCR(t.ctx, name, p.Data)
	if err != nil {
		r.reply(t, FormatError(err), nil)
		return
	}
	if strings.TrimSpace(text) == "" {
		r.reply(t, "Tidak ada teks yang terdeteksi dari gambar.", nil)
		return
	}
	r.reply(t, "*Hasil OCR:*", nil)
	r.reply(t, text, nil)
}

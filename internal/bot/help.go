package bot

const welcomeText = `🤖 *Selamat datang di Bot Fiber!*

📋 *Perintah yang tersedia:*
• /psb - Konfigurasi ONT baru
• /cek <query> - Cek status pelanggan
• /cu <query> - Config ulang ONT pelanggan
• open <nama/pppoe> [kendala] - Buat tiket
• link <nama/pppoe> - Cek tagihan
• l <nama/pppoe> - Singkatan dari link

Ketik /help untuk bantuan lebih lanjut.`

const helpText = `📚 *Panduan Bot*

*PSB (Pasang Baru):*
/psb atau /config - Mulai wizard konfigurasi ONT

*Cek Pelanggan:*
/cek <nama/pppoe> - Cek status, redaman, reboot, lock port, ganti kapasitas

*Config Ulang:*
/cu <nama/pppoe> - Hapus ONU lama (opsional) lalu config ONT baru

*Tiket:*
open <nama/pppoe> [kendala] - Buat tiket gangguan (o = singkatan)
/tiket <query> - Cari tiket
/close <no tiket> [catatan] - Tutup tiket
/forward <no tiket> [catatan] - Teruskan tiket

*Tagihan:*
link <nama/pppoe> - Cek detail tagihan
l <nama/pppoe> - Sama dengan link

*Lainnya:*
Kirim foto untuk OCR (gambar ke teks)
/cancel - Batalkan proses yang sedang berjalan

*Contoh:*
• ` + "`link john doe`" + `
• ` + "`open maria wifi lag putus`" + `
• ` + "`/cek ahmad`"

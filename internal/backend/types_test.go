package backend

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCustomer_UnmarshalAliases(t *testing.T) {
	var c Customer
	raw := `{"name":"Budi","user_pppoe":"budi01","pppoe_pass":"pw","paket":"20M"}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Customer{Name: "Budi", PPPoEUser: "budi01", PPPoEPass: "pw", Package: "20M"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("customer mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomer_CanonicalWins(t *testing.T) {
	var c Customer
	raw := `{"name":"Budi","pppoe_user":"canonical","user_pppoe":"alias"}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.PPPoEUser != "canonical" {
		t.Errorf("PPPoEUser = %q, want %q", c.PPPoEUser, "canonical")
	}
}

func TestCustomer_RoundTripKeepsFields(t *testing.T) {
	in := Customer{Name: "Ahmad", PPPoEUser: "ahmad", OLT: "OLT-A", Interface: "0/1/1"}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Customer
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomer_Label(t *testing.T) {
	tests := []struct {
		c    Customer
		want string
	}{
		{Customer{Name: "Ahmad", PPPoEUser: "ahmad01"}, "Ahmad | ahmad01"},
		{Customer{}, "N/A | N/A"},
		{Customer{Name: "Nama Yang Sangat Panjang Sekali", PPPoEUser: "x"}, "Nama Yang Sangat Pan | x"},
	}
	for _, tt := range tests {
		if got := tt.c.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestDevice_Label(t *testing.T) {
	d := Device{SN: "ZTEGC1234567", PONPort: "1", PONSlot: "3"}
	if got, want := d.Label(), "1:3 | ZTEGC123"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":"x","b":12,"c":true,"d":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != "x" || v.B != "12" || v.C != "true" || v.D != "" {
		t.Errorf("got %+v", v)
	}

	var bad FlexString
	if err := json.Unmarshal([]byte(`{"x":1}`), &bad); err == nil {
		t.Error("expected error decoding object into FlexString")
	}
}

func TestBillingRecord_InvoiceLines(t *testing.T) {
	tests := []struct {
		name     string
		invoices string
		want     string
	}{
		{"none", ``, ""},
		{"string", `"https://pay.example/inv/1"`, "https://pay.example/inv/1"},
		{"amounts", `[{"amount":100},{"total":"200"},"raw"]`, "1. 100\n2. 200\n3. raw"},
		{"object", `{"due":1}`, `{"due":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BillingRecord{Invoices: json.RawMessage(tt.invoices)}
			if got := b.InvoiceLines(); got != tt.want {
				t.Errorf("InvoiceLines() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTicket_Summary(t *testing.T) {
	var tk Ticket
	if err := json.Unmarshal([]byte(`{"no_ticket":"T-1","pelanggan":"Maria","keluhan":"los"}`), &tk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, want := tk.Summary(), "#T-1 Maria\nlos"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}

	var bare Ticket
	if err := json.Unmarshal([]byte(`{"zeta":"1","alpha":"2"}`), &bare); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, want := bare.Summary(), "alpha: 2\nzeta: 1"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

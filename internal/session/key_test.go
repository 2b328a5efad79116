package session

import "testing"

func TestKey_RoundTrip(t *testing.T) {
	tests := []Key{
		{Platform: "telegram", ChannelID: "-100200", UserID: "42"},
		{Platform: "slack", ChannelID: "C123", UserID: "U9"},
		{Platform: "console", ChannelID: "a:b", UserID: "op"},
	}
	for _, k := range tests {
		got, err := ParseKey(k.String())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", k.String(), err)
		}
		if got != k {
			t.Errorf("ParseKey(%q) = %+v, want %+v", k.String(), got, k)
		}
	}
}

func TestParseKey_Malformed(t *testing.T) {
	for _, s := range []string{"", "telegram", "telegram:42", ":c:u", "telegram:c:"} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("ParseKey(%q) error = nil, want error", s)
		}
	}
}

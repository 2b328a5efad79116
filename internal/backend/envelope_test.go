package backend

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeList_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []int
	}{
		{"bare list", `[1,2,3]`, []int{1, 2, 3}},
		{"data envelope", `{"data":[1,2,3]}`, []int{1, 2, 3}},
		{"results envelope", `{"results":[1,2,3]}`, []int{1, 2, 3}},
		{"null data falls back to results", `{"data":null,"results":[4]}`, []int{4}},
		{"empty body", ``, []int{}},
		{"null", `null`, []int{}},
		{"object without list", `{"total":0}`, []int{}},
		{"padded", "  \n[7]\n", []int{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeList[int](json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("DecodeList(%q) error: %v", tt.raw, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeList(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestDecodeList_BareAndWrappedAgree(t *testing.T) {
	bare, err := DecodeList[int](json.RawMessage(`[1,2,3]`))
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	wrapped, err := DecodeList[int](json.RawMessage(`{"data":[1,2,3]}`))
	if err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if diff := cmp.Diff(bare, wrapped); diff != "" {
		t.Errorf("normalized lists differ (-bare +wrapped):\n%s", diff)
	}
}

func TestNormalizeList_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"scalar", `"oops"`, "expected list"},
		{"envelope holds object", `{"data":{"a":1}}`, "does not hold a list"},
		{"broken list", `[1,`, "decode list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeList(json.RawMessage(tt.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDecodeList_ItemError(t *testing.T) {
	_, err := DecodeList[int](json.RawMessage(`[1,"two"]`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "decode item 1") {
		t.Errorf("error = %q, want item index", err.Error())
	}
}

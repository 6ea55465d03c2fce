package models

import "testing"

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "My.Linux.ISO [01/10] - \"disc.iso\" yEnc", "My.Linux.ISO [01/10] - \"disc.iso\" yEnc"},
		{"utf8 b-word", "=?UTF-8?B?w6R3ZXNvbWU=?=", "äwesome"},
		{"latin1 q-word", "=?ISO-8859-1?Q?M=FCller?=", "Müller"},
		{"latin15 q-word", "=?iso-8859-15?Q?=A4uro?=", "€uro"},
		{"raw latin1 bytes", "caf\xe9", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeHeader(tt.in); got != tt.want {
				t.Errorf("DecodeHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGroupHasWatermarks(t *testing.T) {
	one, two := int64(1), int64(2)
	if (&Group{}).HasWatermarks() {
		t.Error("empty group reports watermarks")
	}
	if (&Group{First: &one}).HasWatermarks() {
		t.Error("half-set group reports watermarks")
	}
	if !(&Group{First: &one, Last: &two}).HasWatermarks() {
		t.Error("group with both watermarks reports none")
	}
}

package util

import "testing"

func TestIsValidIPv4(t *testing.T) {
	tests := []struct {
		name  string
		ipStr string
		want  bool
	}{
		{"valid IP", "192.168.1.1", true},
		{"valid loopback", "127.0.0.1", true},
		{"valid zero", "0.0.0.0", true},
		{"valid broadcast", "255.255.255.255", true},
		{"invalid - out of range", "256.1.1.1", false},
		{"invalid - text", "invalid", false},
		{"invalid - empty", "", false},
		{"invalid - IPv6", "::1", false},
		{"invalid - partial", "192.168.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidIPv4(tt.ipStr)
			if got != tt.want {
				t.Errorf("IsValidIPv4(%q) = %v, want %v", tt.ipStr, got, tt.want)
			}
		})
	}
}

func TestIsValidIPLiteral(t *testing.T) {
	tests := []struct {
		name  string
		ipStr string
		want  bool
	}{
		{"valid IPv4", "10.0.0.1", true},
		{"valid IPv6", "2001:db8::1", true},
		{"valid IPv6 loopback", "::1", true},
		{"invalid - hostname", "router1.example.com", false},
		{"invalid - empty", "", false},
		{"invalid - garbage", "not-an-ip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidIPLiteral(tt.ipStr)
			if got != tt.want {
				t.Errorf("IsValidIPLiteral(%q) = %v, want %v", tt.ipStr, got, tt.want)
			}
		})
	}
}

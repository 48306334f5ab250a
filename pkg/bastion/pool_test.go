package bastion

import (
	"testing"
	"time"
)

func TestDeviceKey(t *testing.T) {
	if got := deviceKey("r1", 22, "admin"); got != "r1:22:admin" {
		t.Errorf("deviceKey = %q", got)
	}
}

func TestCommandTimeout_BGPKeyword(t *testing.T) {
	got := commandTimeout("show ip bgp summary", "bgp", 60*time.Second)
	if got != MinExtendedTimeout {
		t.Errorf("got %s, want %s", got, MinExtendedTimeout)
	}
}

func TestCommandTimeout_RouteKeyword(t *testing.T) {
	got := commandTimeout("show ip route static", "static", 60*time.Second)
	if got != MinExtendedTimeout {
		t.Errorf("got %s, want %s", got, MinExtendedTimeout)
	}
}

func TestCommandTimeout_VPNLayer(t *testing.T) {
	got := commandTimeout("show vrf", "vpn", 60*time.Second)
	if got != MinExtendedTimeout {
		t.Errorf("got %s, want %s", got, MinExtendedTimeout)
	}
}

func TestCommandTimeout_HealthMemoryKeyword(t *testing.T) {
	got := commandTimeout("show processes memory sorted", "health", 60*time.Second)
	if got != MinExtendedTimeout {
		t.Errorf("got %s, want %s", got, MinExtendedTimeout)
	}
}

func TestCommandTimeout_PlainCommandUsesBase(t *testing.T) {
	got := commandTimeout("show clock", "health", 60*time.Second)
	if got != 60*time.Second {
		t.Errorf("got %s, want base timeout", got)
	}
}

func TestCommandTimeout_BaseAlreadyLongerThanMinimum(t *testing.T) {
	got := commandTimeout("show ip bgp summary", "bgp", 180*time.Second)
	if got != 180*time.Second {
		t.Errorf("got %s, want base to win since it exceeds the minimum", got)
	}
}

func TestClassifyConnectError(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"ssh: unable to authenticate", "auth"},
		{"dial tcp: no such host", "invalid_address"},
		{"dial tcp: i/o timeout", "timeout"},
		{"connection refused", "network"},
	}
	for _, c := range cases {
		if got := classifyConnectError(fmtErr(c.msg)); got != c.want {
			t.Errorf("classifyConnectError(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestRecordAttempt_BoundedHistory(t *testing.T) {
	p := NewPool(Config{BastionHost: "bastion", BastionUser: "ops"})
	for i := 0; i < maxRetryHistory+5; i++ {
		p.recordAttempt("r1", "timeout", time.Millisecond)
	}
	stats := p.Stats()
	stat := stats.ByDevice["r1"]
	if len(stat.RetryHistory) != maxRetryHistory {
		t.Errorf("history len = %d, want %d (bounded)", len(stat.RetryHistory), maxRetryHistory)
	}
	if stat.Attempts != maxRetryHistory+5 {
		t.Errorf("Attempts = %d, want %d (counter unbounded even though history is)", stat.Attempts, maxRetryHistory+5)
	}
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func fmtErr(msg string) error { return simpleErr(msg) }

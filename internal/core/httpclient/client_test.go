package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestNewOutbound(t *testing.T) {
	c := NewOutbound(0)
	if c.Timeout != 30*time.Second {
		t.Fatalf("timeout=%s want 30s default", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport=%T", c.Transport)
	}
	if !tr.DisableKeepAlives {
		t.Fatal("keep-alives must be disabled")
	}
	if got := NewOutbound(2 * time.Second).Timeout; got != 2*time.Second {
		t.Fatalf("timeout=%s want 2s", got)
	}
}

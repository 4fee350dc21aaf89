package sentinel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhitelist_Contains(t *testing.T) {
	wl := NewWhitelist([]string{"10.0.0.9", "user-42", ""})

	assert.True(t, wl.Contains("10.0.0.9"))
	assert.False(t, wl.Contains("10.0.0.10"))
	assert.False(t, wl.Contains(""))
}

func TestWhitelist_ContainsCompositeIdentity(t *testing.T) {
	wl := NewWhitelist([]string{"10.0.0.9", "user-42"})

	// Either half of an "ip|user" identity exempts the request.
	assert.True(t, wl.Contains("10.0.0.9|user-7"))
	assert.True(t, wl.Contains("192.168.1.1|user-42"))
	assert.False(t, wl.Contains("192.168.1.1|user-7"))
}

func TestWhitelist_NilReceiver(t *testing.T) {
	var wl *Whitelist
	assert.False(t, wl.Contains("10.0.0.9"))
	assert.Nil(t, wl.Identities())
}

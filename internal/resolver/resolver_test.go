package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		address string
		want    string
	}{
		{"a@gmail.com", "imap.gmail.com"},
		{"a@GMail.com", "imap.gmail.com"},
		{"a@googlemail.com", "imap.googlemail.com"},
		{"a@yahoo.co.uk", "imap.mail.yahoo.com"},
		{"a@outlook.com", "outlook.office365.com"},
		{"a@hotmail.de", "outlook.office365.com"},
		{"a@live.com", "outlook.office365.com"},
		{"a@icloud.com", "imap.mail.me.com"},
		{"a@myown.org", "imap.myown.org"},
		{"myown.org", "imap.myown.org"},
	}

	for _, tc := range cases {
		t.Run(tc.address, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.address))
		})
	}
}

func TestResolverOverrides(t *testing.T) {
	r := New(map[string]string{"Example.COM": "mail.example.net"})

	assert.Equal(t, "mail.example.net", r.Resolve("bob@example.com"))
	assert.Equal(t, "imap.gmail.com", r.Resolve("bob@gmail.com"))
	assert.Equal(t, "imap.other.org", r.Resolve("bob@other.org"))
}

func TestDomainSplitsOnFirstAt(t *testing.T) {
	assert.Equal(t, "b@c.com", Domain("a@b@C.com"))
}

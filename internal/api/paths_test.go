package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPath(t *testing.T) {
	cases := []struct {
		name string
		path string
		base string
		want []string
	}{
		{"root", "/contacts", "/contacts", nil},
		{"root trailing slash", "/contacts/", "/contacts", nil},
		{"one segment", "/contacts/addressbooks", "/contacts", []string{"addressbooks"}},
		{"nested", "/contacts/addressbooks/admin/contacts/alice", "/contacts",
			[]string{"addressbooks", "admin", "contacts", "alice"}},
		{"trailing slash dropped", "/contacts/addressbooks/", "/contacts", []string{"addressbooks"}},
		{"traversal rejected", "/contacts/addressbooks/../secrets", "/contacts", nil},
		{"dot rejected", "/contacts/./addressbooks", "/contacts", nil},
		{"backslash rejected", "/contacts/addressbooks/ad\\min", "/contacts", nil},
		{"empty segment rejected", "/contacts/addressbooks//alice", "/contacts", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitPath(tc.path, tc.base))
		})
	}
}

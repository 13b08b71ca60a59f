// Package identity turns tracker person references into stable person IDs.
//
// A person is described by a "Real Name<email>" descriptor. Resolvers map
// a descriptor to a PersonID and must return the same ID for the same
// descriptor; Cached wraps any resolver so each descriptor is resolved
// once per run.
package identity

import (
	"strings"

	"github.com/codeface/bugcrawl/internal/types"
)

// Bugzilla's placeholder account and the name it is recorded under.
const (
	NobodyEmail = "nobody@mozilla.org"
	NobodyName  = "Nobody the test user"
)

// Descriptor formats p as "Real Name<email>". Non-ASCII characters are
// removed from the name; a missing name falls back to the email's local part.
func Descriptor(p types.Person) string {
	email := strings.TrimSpace(p.Email)
	var name string
	if email == NobodyEmail {
		name = NobodyName
	} else {
		name = strings.TrimSpace(asciiOnly(p.RealName))
	}
	if name == "" {
		name = localPart(email)
	}
	return name + "<" + email + ">"
}

// EmailDescriptor formats a bare email or login, as reported for history
// actors and comment authors.
func EmailDescriptor(email string) string {
	return Descriptor(types.Person{Email: email})
}

// ParseDescriptor splits a descriptor into name and email. A string
// without angle brackets is taken as an email.
func ParseDescriptor(d string) (name, email string) {
	open := strings.LastIndexByte(d, '<')
	if open < 0 || !strings.HasSuffix(d, ">") {
		email = strings.TrimSpace(d)
		return localPart(email), email
	}
	name = strings.TrimSpace(d[:open])
	email = strings.TrimSpace(d[open+1 : len(d)-1])
	if name == "" {
		name = localPart(email)
	}
	return name, email
}

func asciiOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < 0x80 {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

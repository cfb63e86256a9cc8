// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package tracker

import (
	"math/rand"
	"strings"
)

// sessionIDTemplate is the 36-character token layout. Each 'x' becomes a
// random hex nibble; 'y' becomes one of {8, 9, a, b}, giving the token a
// UUIDv4 shape without any uniqueness guarantee. Collisions across tabs are
// an accepted risk: the token is a correlation key, not an identity claim,
// so there is no need for crypto/rand here.
const sessionIDTemplate = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"

const hexDigits = "0123456789abcdef"

func generateSessionID() string {
	var b strings.Builder
	b.Grow(len(sessionIDTemplate))
	for _, c := range sessionIDTemplate {
		switch c {
		case 'x':
			b.WriteByte(hexDigits[rand.Intn(16)])
		case 'y':
			b.WriteByte(hexDigits[8+rand.Intn(4)])
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// SessionID returns this tracker's session token, generating it on first
// use. The token is stable for the tracker's lifetime: every flush of one
// page visit carries the same id.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID == "" {
		t.sessionID = generateSessionID()
	}
	return t.sessionID
}

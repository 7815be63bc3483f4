package security

import (
	"fmt"
	"time"
)

// KeyRotationWindow gates when a retired key version may still decrypt.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type keyRef struct {
	keyID   string
	version int
}

func (r keyRef) String() string {
	return fmt.Sprintf("%s@v%d", r.keyID, r.version)
}

// retiredKey can open tokens sealed before a rotation but never seals new ones.
type retiredKey struct {
	key    []byte
	window KeyRotationWindow
}

package tournament

import (
	"math/rand"
	"strings"
	"sync"
)

const (
	inviteCodeLength = 6
	// inviteAlphabet leaves out I, O, 0 and 1.
	inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// lockedRand serialises access to a *rand.Rand shared by every tournament.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rnd == nil {
		return rand.Intn(n)
	}
	return l.rnd.Intn(n)
}

// generateInviteCode returns a code not present in taken.
func generateInviteCode(rnd *lockedRand, taken func(string) bool) string {
	for {
		var b strings.Builder
		b.Grow(inviteCodeLength)
		for i := 0; i < inviteCodeLength; i++ {
			b.WriteByte(inviteAlphabet[rnd.Intn(len(inviteAlphabet))])
		}
		code := b.String()
		if !taken(code) {
			return code
		}
	}
}

func validInviteCode(code string) bool {
	if len(code) != inviteCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(inviteAlphabet, r) {
			return false
		}
	}
	return true
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package bot

import (
	"math/rand"

	"loteria/internal/domain"
)

// Agent is the decision-maker for one bot seat. Lotería bots make exactly one
// kind of decision: when to shout after their board completes. A short random
// delay keeps them from winning races against humans instantly.
type Agent struct {
	UserID   string
	MinDelay int64 // ticks
	MaxDelay int64 // ticks

	claimAt int64
	rng     *rand.Rand
}

// NewAgent constructs an agent for the given bot user.
func NewAgent(userID string, minDelay, maxDelay int64, rng *rand.Rand) *Agent {
	if minDelay < 1 {
		minDelay = 1 // also keeps claimAt clear of the zero "unscheduled" sentinel
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Agent{UserID: userID, MinDelay: minDelay, MaxDelay: maxDelay, rng: rng}
}

// DecideClaim reports whether the bot should claim a win on this tick.
// The first tick on which the board is complete only schedules the shout;
// the claim fires once the scheduled tick arrives. Any state that makes the
// claim moot (someone already won, board no longer covered after a reset or
// a backward step) clears the schedule.
func (a *Agent) DecideClaim(r *domain.Room, tick int64) bool {
	if r.WinnerID != "" || !domain.VerifyClaim(r, a.UserID) {
		a.claimAt = 0
		return false
	}
	if a.claimAt == 0 {
		a.claimAt = tick + a.delay()
		return false
	}
	if tick >= a.claimAt {
		a.claimAt = 0
		return true
	}
	return false
}

func (a *Agent) delay() int64 {
	if a.MaxDelay == a.MinDelay {
		return a.MinDelay
	}
	return a.MinDelay + a.rng.Int63n(a.MaxDelay-a.MinDelay+1)
}

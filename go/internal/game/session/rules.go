package session

import "time"

// Rules holds the scoring and pacing constants for a session.
type Rules struct {
	DefaultTimer    time.Duration
	ResultsInterval time.Duration
	BasePoints      int
	StreakBonus     int
	MaxStreakSteps  int
}

func DefaultRules() Rules {
	return Rules{
		DefaultTimer:    15 * time.Second,
		ResultsInterval: 5 * time.Second,
		BasePoints:      1000,
		StreakBonus:     50,
		MaxStreakSteps:  5,
	}
}

// Points computes the award for a correct answer with integer arithmetic
// only. Half the base is guaranteed; the other half decays linearly with
// elapsed time. streak counts this answer, so the bonus starts on the
// second correct answer in a row.
func Points(rules Rules, remaining, duration time.Duration, streak int) int {
	if remaining < 0 {
		remaining = 0
	}
	if remaining > duration {
		remaining = duration
	}

	half := int64(rules.BasePoints / 2)
	pts := half
	if ms := duration.Milliseconds(); ms > 0 {
		pts += half * remaining.Milliseconds() / ms
	}

	steps := streak - 1
	if steps > rules.MaxStreakSteps {
		steps = rules.MaxStreakSteps
	}
	if steps > 0 {
		pts += int64(steps * rules.StreakBonus)
	}
	return int(pts)
}

// Package policy содержит правило временной блокировки смены актива.
package policy

import "time"

// DefaultWindow - окно, в течение которого повторная смена запрещена
const DefaultWindow = 15 * 24 * time.Hour

type Verdict int

const (
	Allowed Verdict = iota
	Denied
)

func (v Verdict) String() string {
	if v == Denied {
		return "denied"
	}
	return "allowed"
}

// Decision - результат проверки. Remaining заполнено только для Denied.
// Skewed означает, что последняя смена оказалась в будущем относительно now.
type Decision struct {
	Verdict   Verdict
	Remaining time.Duration
	Skewed    bool
}

func (d Decision) Allowed() bool {
	return d.Verdict == Allowed
}

// Evaluate решает, допустима ли смена сейчас.
// При рассинхроне часов (now раньше lastChangedAt) слот не блокируется.
func Evaluate(lastChangedAt *time.Time, now time.Time, window time.Duration) Decision {
	if lastChangedAt == nil || window <= 0 {
		return Decision{Verdict: Allowed}
	}

	elapsed := now.Sub(*lastChangedAt)
	if elapsed < 0 {
		return Decision{Verdict: Allowed, Skewed: true}
	}
	if elapsed >= window {
		return Decision{Verdict: Allowed}
	}

	return Decision{Verdict: Denied, Remaining: window - elapsed}
}

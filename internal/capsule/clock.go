package capsule

import (
	"fmt"
	"time"
)

type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Countdown is the remaining time split into whole display units.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// CountdownFrom decomposes a duration. Anything at or below zero is the zero
// countdown; sub-second remainders are truncated.
func CountdownFrom(remaining time.Duration) Countdown {
	if remaining <= 0 {
		return Countdown{}
	}
	s := int64(remaining / time.Second)
	days := s / 86400
	s -= days * 86400
	hours := s / 3600
	s -= hours * 3600
	mins := s / 60
	secs := s - mins*60
	return Countdown{Days: int(days), Hours: int(hours), Minutes: int(mins), Seconds: int(secs)}
}

func (c Countdown) IsZero() bool {
	return c == Countdown{}
}

// Fields returns days, hours, minutes and seconds padded to two digits.
func (c Countdown) Fields() [4]string {
	return [4]string{
		fmt.Sprintf("%02d", c.Days),
		fmt.Sprintf("%02d", c.Hours),
		fmt.Sprintf("%02d", c.Minutes),
		fmt.Sprintf("%02d", c.Seconds),
	}
}

func (c Countdown) Total() time.Duration {
	return time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute +
		time.Duration(c.Seconds)*time.Second
}

// Clock is the reveal state machine. It moves from Locked to Unlocked once,
// either when the target passes or through ForceOpen, and never back.
// A Clock is not safe for concurrent use.
type Clock struct {
	target time.Time
	state  State
	forced bool
}

func NewClock(target time.Time) *Clock {
	return &Clock{target: target}
}

func (c *Clock) Target() time.Time {
	return c.target
}

func (c *Clock) State() State {
	return c.state
}

func (c *Clock) Unlocked() bool {
	return c.state == Unlocked
}

// Forced reports whether the unlock came from ForceOpen before the target.
func (c *Clock) Forced() bool {
	return c.forced
}

// Tick computes the countdown at now. The bool is true only on the call
// that performs the Locked to Unlocked transition.
func (c *Clock) Tick(now time.Time) (Countdown, bool) {
	remaining := c.target.Sub(now)
	if remaining > 0 {
		// a forced clock keeps reporting the real remaining time
		return CountdownFrom(remaining), false
	}
	return Countdown{}, c.unlock()
}

// ForceOpen unlocks regardless of the remaining time. The target instant is
// left untouched. Reports whether this call changed the state.
func (c *Clock) ForceOpen() bool {
	if c.Unlocked() {
		return false
	}
	c.forced = true
	return c.unlock()
}

func (c *Clock) unlock() bool {
	if c.state == Unlocked {
		return false
	}
	c.state = Unlocked
	return true
}

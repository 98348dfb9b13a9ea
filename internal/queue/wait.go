package queue

import "fmt"

// DefaultSlotMinutes is the assumed processing time per queued release.
const DefaultSlotMinutes = 15

// WaitMinutes is the estimated wait for a 1-based position.
func WaitMinutes(position, slotMinutes int) int {
	if position <= 1 {
		return 0
	}
	return (position - 1) * slotMinutes
}

// FormatWait renders a wait in minutes: "Next in queue", "45 minutes", "1 hour",
// "2 hours 30 minutes".
func FormatWait(minutes int) string {
	if minutes <= 0 {
		return "Next in queue"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
	}
	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return fmt.Sprintf("%d %s", hours, plural(hours, "hour"))
	}
	return fmt.Sprintf("%d %s %d %s", hours, plural(hours, "hour"), rest, plural(rest, "minute"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

package scheduler

import "time"

// nextAutoRun decides when the next automatic backup should fire. The base
// cadence is lastBackup + interval. To avoid capturing mid-edit state, a run
// is postponed while activity occurred within the quiet window (a quarter of
// the interval) before it would fire. Postponement is capped at twice the
// interval since the last backup so continuous editing cannot starve backups
// forever.
func nextAutoRun(now, lastBackup, lastActivity time.Time, interval time.Duration) time.Time {
	if lastBackup.IsZero() {
		return now
	}
	due := lastBackup.Add(interval)
	quiet := interval / 4
	hard := lastBackup.Add(2 * interval)

	if lastActivity.Add(quiet).After(due) {
		postponed := lastActivity.Add(quiet)
		if postponed.After(hard) {
			return hard
		}
		return postponed
	}
	return due
}

// autoDue reports whether an automatic run should start right now. The
// periodic timer can fire on a schedule that activity has since postponed;
// this re-check keeps the quiet window honest.
func (s *Scheduler) autoDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.st {
	case StateError:
		return !s.now().Before(s.lastAttempt.Add(s.retryDelay()))
	case StateEnabled:
		return !s.now().Before(nextAutoRun(s.now(), s.lastBackup, s.lastActivity, s.interval()))
	default:
		return false
	}
}

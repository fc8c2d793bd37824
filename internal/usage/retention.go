package usage

import "time"

// retentionInterval is how often expired entries are deleted.
const retentionInterval = time.Hour

// runRetention calls prune immediately and then every interval until stop is closed.
func runRetention(stop <-chan struct{}, interval time.Duration, prune func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune()
	for {
		select {
		case <-ticker.C:
			prune()
		case <-stop:
			return
		}
	}
}

// retentionCutoff returns the oldest timestamp kept for the given retention.
func retentionCutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

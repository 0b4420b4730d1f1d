package engine

import "time"

// ProcessingStats are the counters accumulated while executing one
// rule.
type ProcessingStats struct {
	TotalMessages        int       `json:"total_messages"`
	ProcessedMessages    int       `json:"processed_messages"`
	SuccessfulOperations int       `json:"successful_operations"`
	FailedOperations     int       `json:"failed_operations"`
	SkippedMessages      int       `json:"skipped_messages"`
	StartTime            time.Time `json:"start_time,omitzero"`
	EndTime              time.Time `json:"end_time,omitzero"`
}

// Duration returns the wall-clock time of the run, or zero until the
// run has finished.
func (s ProcessingStats) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// SuccessRate returns the success percentage in [0,100]. A run that
// processed nothing has a rate of exactly 0.
func (s ProcessingStats) SuccessRate() float64 {
	if s.ProcessedMessages == 0 {
		return 0.0
	}
	return float64(s.SuccessfulOperations) / float64(s.ProcessedMessages) * 100
}

// Map flattens the stats for storage in a rule's free-form stats map.
func (s ProcessingStats) Map() map[string]any {
	return map[string]any{
		"total_messages":        s.TotalMessages,
		"processed_messages":    s.ProcessedMessages,
		"successful_operations": s.SuccessfulOperations,
		"failed_operations":     s.FailedOperations,
		"skipped_messages":      s.SkippedMessages,
		"success_rate":          s.SuccessRate(),
		"duration_seconds":      s.Duration().Seconds(),
	}
}

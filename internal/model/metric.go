package model

// SkillMetric is a point-in-time snapshot of the aggregate counters kept for
// one skill version. Invocations counts accepted submissions;
// TotalExecutions counts those that reached a terminal status.
type SkillMetric struct {
	SkillName              string           `json:"skillName"`
	SkillVersion           string           `json:"skillVersion"`
	Invocations            int64            `json:"invocations"`
	TotalExecutions        int64            `json:"totalExecutions"`
	SuccessfulExecutions   int64            `json:"successfulExecutions"`
	FailedExecutions       int64            `json:"failedExecutions"`
	TimedOutExecutions     int64            `json:"timedOutExecutions"`
	CancelledExecutions    int64            `json:"cancelledExecutions"`
	SuccessRate            float64          `json:"successRate"`
	AverageExecutionTimeMs float64          `json:"averageExecutionTimeMs"`
	LastExecutionTimeMs    int64            `json:"lastExecutionTimeMs"`
	Errors                 map[string]int64 `json:"errors"`
}

package core

import "time"

// TaskExecutionRecord captures a completed task.
type TaskExecutionRecord struct {
	TaskID      TaskID
	Name        string
	Owner       string
	Queue       string
	Bypass      bool
	Kind        TaskKind
	Invocations int
	Resumes     int
	Scheduled   time.Duration
	FinishedAt  time.Time
}

// QueueStats represents the state of one named queue.
type QueueStats struct {
	Owner   string
	Name    string
	Pending int
	Running bool
	Locked  bool
}

// HostStats represents the state of a TickLoop.
type HostStats struct {
	Ticks uint64
	Live  int
}

// Snapshot combines host and registry state at one tick boundary.
type Snapshot struct {
	Host    HostStats
	Queues  []QueueStats
	Bypass  int
	TakenAt time.Time
}

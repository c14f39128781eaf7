// Package types defines shared types for the stat supervisor.
// Heartbeat types mirror the Quasar protocol so Zenith can display the node.
package types

import "time"

// Language represents the runtime/language type
type Language string

const (
	LangNode   Language = "node"
	LangBun    Language = "bun"
	LangDeno   Language = "deno"
	LangPHP    Language = "php"
	LangGo     Language = "go"
	LangPython Language = "python"
	LangOther  Language = "other"
)

// QueueDriver represents the queue driver type
type QueueDriver string

const (
	DriverRedis    QueueDriver = "redis"
	DriverSQS      QueueDriver = "sqs"
	DriverRabbitMQ QueueDriver = "rabbitmq"
)

// QueueSize contains queue depth metrics
type QueueSize struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
	Delayed int64 `json:"delayed"`
}

// Pending is the number of messages not yet processed: waiting, delayed and
// currently reserved. Failed jobs are excluded.
func (s QueueSize) Pending() int64 {
	return s.Waiting + s.Active + s.Delayed
}

// QueueThroughput contains throughput metrics (jobs/min)
type QueueThroughput struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// QueueSnapshot represents a point-in-time queue state
type QueueSnapshot struct {
	Name       string           `json:"name"`
	Driver     QueueDriver      `json:"driver"`
	Size       QueueSize        `json:"size"`
	Throughput *QueueThroughput `json:"throughput,omitempty"`
}

// CPUMetrics contains CPU usage data
type CPUMetrics struct {
	System  float64 `json:"system"`  // System-wide CPU % (0-100)
	Process float64 `json:"process"` // This process CPU % (0-100)
	Cores   int     `json:"cores"`   // Number of CPU cores
}

// SystemMemory contains system-wide memory metrics
type SystemMemory struct {
	Total uint64 `json:"total"` // Total bytes
	Free  uint64 `json:"free"`  // Free bytes
	Used  uint64 `json:"used"`  // Used bytes
}

// ProcessMemory contains process-specific memory metrics
type ProcessMemory struct {
	RSS       uint64 `json:"rss"`       // Resident Set Size
	HeapTotal uint64 `json:"heapTotal"` // Go runtime heap reserved
	HeapUsed  uint64 `json:"heapUsed"`  // Go runtime heap in use
}

// MemoryMetrics contains both system and process memory
type MemoryMetrics struct {
	System  SystemMemory  `json:"system"`
	Process ProcessMemory `json:"process"`
}

// RuntimeInfo contains runtime metadata
type RuntimeInfo struct {
	Uptime    float64  `json:"uptime"`
	Framework string   `json:"framework"`
	Status    string   `json:"status"`           // "online", "degraded", "error"
	Errors    []string `json:"errors,omitempty"` // Connection errors or probe failures
}

// HeartbeatPayload is the complete payload sent to Zenith
type HeartbeatPayload struct {
	ID        string          `json:"id"`
	Service   string          `json:"service"`
	Language  Language        `json:"language"`
	Version   string          `json:"version"`
	PID       int             `json:"pid"`
	Hostname  string          `json:"hostname"`
	Platform  string          `json:"platform"`
	CPU       CPUMetrics      `json:"cpu"`
	Memory    MemoryMetrics   `json:"memory"`
	Queues    []QueueSnapshot `json:"queues,omitempty"`
	Runtime   RuntimeInfo     `json:"runtime"`
	Meta      map[string]any  `json:"meta,omitempty"` // Extra metadata like consumer count
	Timestamp int64           `json:"timestamp"`
}

// StatSnapshot is one persisted queue depth sample.
type StatSnapshot struct {
	RunID   string    `json:"run"`
	Created time.Time `json:"created"`
	Queue   int64     `json:"queue"`
}

// ConsumerSnapshot is one persisted sample of running consumer processes.
type ConsumerSnapshot struct {
	RunID   string    `json:"run"`
	Created time.Time `json:"created"`
	PIDs    []int32   `json:"pids"`
}

// Count returns the number of running consumers.
func (c ConsumerSnapshot) Count() int {
	return len(c.PIDs)
}

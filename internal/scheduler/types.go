// Package scheduler is the scheduled-run controller (spec §4.3): it turns
// queued-run requests and time-based heartbeat/cron programs into DAG
// runner invocations, and exposes run/program state through a uniform
// query surface.
package scheduler

import "time"

func nowMs() int64 { return time.Now().UnixMilli() }

// TargetKind names what a heartbeat or cron program acts on. Runs are the
// only target kind the runtime defines today.
type TargetKind string

const TargetRun TargetKind = "run"

// RunStatus is a queued run's lifecycle state.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	// RunPaused means the DAG runner hit its step budget without the root
	// reaching a final or deadlocked state; resumable via run_resume.
	RunPaused   RunStatus = "paused"
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunDeadlock RunStatus = "deadlock"
)

func isTerminal(s RunStatus) bool {
	return s == RunSuccess || s == RunFailed || s == RunDeadlock
}

// RunRecord is one queued run's current state (spec §4.3 "Queue").
type RunRecord struct {
	JobID        string   `json:"job_id"`
	RootIssueID  string   `json:"root_issue_id"`
	Prompt       string   `json:"prompt,omitempty"`
	MaxSteps     int      `json:"max_steps"`
	Status       RunStatus `json:"status"`
	Reason       string   `json:"reason,omitempty"`
	StdoutTail   []string `json:"stdout_tail,omitempty"`
	StderrTail   []string `json:"stderr_tail,omitempty"`
	LogHintPaths []string `json:"log_hint_paths,omitempty"`
	CreatedAtMs  int64    `json:"created_at_ms"`
	UpdatedAtMs  int64    `json:"updated_at_ms"`
}

func (r *RunRecord) clone() *RunRecord {
	c := *r
	c.StdoutTail = append([]string(nil), r.StdoutTail...)
	c.StderrTail = append([]string(nil), r.StderrTail...)
	c.LogHintPaths = append([]string(nil), r.LogHintPaths...)
	return &c
}

// HeartbeatProgram fires on a fixed every_ms interval (spec §4.3 "Heartbeat
// programs").
type HeartbeatProgram struct {
	ProgramID             string     `json:"program_id"`
	TargetKind            TargetKind `json:"target_kind"`
	TargetID              string     `json:"target_id"`
	EveryMs               int64      `json:"every_ms"`
	Enabled               bool       `json:"enabled"`
	AutoDisableOnTerminal bool       `json:"auto_disable_on_terminal"`
	NextTriggerAtMs       int64      `json:"next_trigger_at_ms"`
	LastTriggeredAtMs     int64      `json:"last_triggered_at_ms,omitempty"`
	LastResult            string     `json:"last_result,omitempty"`
	CreatedAtMs           int64      `json:"created_at_ms"`
	UpdatedAtMs           int64      `json:"updated_at_ms"`
}

func (p *HeartbeatProgram) clone() *HeartbeatProgram { c := *p; return &c }

// CronExpr is the cron{expr, tz} schedule variant.
type CronExpr struct {
	Expr string `json:"expr"`
	TZ   string `json:"tz"`
}

// CronSchedule is the tagged variant of a cron program's schedule (spec
// §4.3 "Cron programs"): exactly one of Every, At, Cron is set.
type CronSchedule struct {
	EveryMs *int64    `json:"every_ms,omitempty"`
	AtMs    *int64    `json:"at_ms,omitempty"`
	Cron    *CronExpr `json:"cron,omitempty"`
}

// CronProgram fires according to its Schedule.
type CronProgram struct {
	ProgramID     string       `json:"program_id"`
	TargetKind    TargetKind   `json:"target_kind"`
	TargetID      string       `json:"target_id"`
	Schedule      CronSchedule `json:"schedule"`
	Enabled       bool         `json:"enabled"`
	NextRunAtMs   int64        `json:"next_run_at_ms"`
	LastRunAtMs   int64        `json:"last_run_at_ms,omitempty"`
	LastResult    string       `json:"last_result,omitempty"`
	CreatedAtMs   int64        `json:"created_at_ms"`
	UpdatedAtMs   int64        `json:"updated_at_ms"`
}

func (p *CronProgram) clone() *CronProgram { c := *p; return &c }

// CronStatus is the aggregate returned by cron.status.
type CronStatus struct {
	Count       int             `json:"count"`
	EnabledCount int            `json:"enabled_count"`
	ArmedCount  int             `json:"armed_count"`
	Armed       []ArmedProgram  `json:"armed"`
}

// ArmedProgram is one entry in CronStatus.Armed.
type ArmedProgram struct {
	ProgramID string `json:"program_id"`
	DueAtMs   int64  `json:"due_at_ms"`
}

func appendCapped(lines []string, line string, cap int) []string {
	lines = append(lines, line)
	if len(lines) > cap {
		lines = lines[len(lines)-cap:]
	}
	return lines
}

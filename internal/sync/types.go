package sync

import (
	"errors"
	"fmt"
	"time"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/queue"
)

type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseSyncing Phase = "SYNCING"
	PhaseSuccess Phase = "SUCCESS"
	PhaseError   Phase = "ERROR"
)

type Connectivity string

const (
	Online  Connectivity = "ONLINE"
	Offline Connectivity = "OFFLINE"
)

func connectivityOf(online bool) Connectivity {
	if online {
		return Online
	}
	return Offline
}

var (
	// ErrOffline is returned by TriggerSync when the remote is unreachable.
	ErrOffline = errors.New("sync: offline")
	// ErrSyncInProgress is returned when a drain is already running; the
	// trigger is dropped, not queued.
	ErrSyncInProgress = errors.New("sync: drain already in progress")
	// ErrSyncAborted wraps the failure that stopped a drain part way.
	ErrSyncAborted = errors.New("sync: drain aborted")
	// ErrMissingEntityID marks a queued update that has no real id to address.
	ErrMissingEntityID = errors.New("sync: update has no entity id")
)

// State is the observable engine status.
type State struct {
	Connectivity Connectivity `json:"connectivity"`
	Phase        Phase        `json:"phase"`
	PendingCount int          `json:"pendingCount"`
	LastSync     *time.Time   `json:"lastSyncTimestamp"`
}

func (s State) String() string {
	return fmt.Sprintf("[%s] %s pending=%d", s.Connectivity, s.Phase, s.PendingCount)
}

// SaveResult is what SaveEntity returns on success, online or queued.
type SaveResult struct {
	Success   bool          `json:"success"`
	Data      entity.Entity `json:"data"`
	IsOffline bool          `json:"isOffline"`
	Message   string        `json:"message,omitempty"`
}

// ItemOutcome is the result of dispatching one queued operation.
type ItemOutcome struct {
	OperationID string     `json:"operationId"`
	Kind        queue.Kind `json:"kind"`
	TempID      string     `json:"tempId,omitempty"`
	RealID      string     `json:"realId,omitempty"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
}

// DrainReport summarises one drain run.
type DrainReport struct {
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Remaining   int           `json:"remaining"`
	Outcomes    []ItemOutcome `json:"outcomes"`
}

func (r *DrainReport) add(o ItemOutcome) {
	r.Processed++
	if o.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

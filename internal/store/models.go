package store

import (
	"time"
)

// Drain outcomes recorded in SyncHistory.Status.
const (
	HistoryStatusSuccess = "success"
	HistoryStatusError   = "error"
)

type SyncHistory struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Status       string     `json:"status"`
	Processed    int        `json:"processed"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Remaining    int        `json:"remaining"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

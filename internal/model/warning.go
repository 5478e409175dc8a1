package model

import "fmt"

// WarningKind classifies a degraded-mode signal surfaced to the caller.
type WarningKind string

const (
	WarnContextRead     WarningKind = "context_read"
	WarnCacheCorruption WarningKind = "cache_corruption"
	WarnCapacity        WarningKind = "capacity"
	WarnLockTimeout     WarningKind = "lock_timeout"
	WarnBudget          WarningKind = "budget"
	WarnDowngrade       WarningKind = "downgrade"
)

// Warning is a recoverable condition the caller should show the user.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	Path    string      `json:"path,omitempty"`
}

func (w Warning) String() string {
	if w.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Message, w.Path)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

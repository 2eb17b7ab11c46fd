package common

import (
	"strings"

	"github.com/google/uuid"
)

func shortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// NewSnapshotID generates a unique snapshot ID with the "snap_" prefix
func NewSnapshotID() string {
	return "snap_" + shortUUID()
}

// NewDeltaID generates a unique delta ID with the "delta_" prefix
func NewDeltaID() string {
	return "delta_" + shortUUID()
}

// NewClusterID generates a unique cluster ID with the "cluster_" prefix
func NewClusterID() string {
	return "cluster_" + shortUUID()
}

// NewEventID generates a unique event ID with the "event_" prefix
func NewEventID() string {
	return "event_" + shortUUID()
}

// NewExpectationID generates a unique expectation ID with the "exp_" prefix
func NewExpectationID() string {
	return "exp_" + shortUUID()
}

// NewTriggerID generates a unique trigger ID with the "trigger_" prefix
func NewTriggerID() string {
	return "trigger_" + shortUUID()
}

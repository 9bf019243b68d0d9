// Package admin provides operator-only endpoints for platform visibility:
// realtime hub statistics and bulk-analysis run states.
package admin

import "github.com/proptor/proptor/internal/risk"

// HubStats reports realtime connection statistics.
type HubStats interface {
	Stats() map[string]interface{}
}

// RunStateReader reports the lifecycle state of a user's bulk analysis run.
type RunStateReader interface {
	State(userID string) risk.RunState
}

package runner

import (
	"fmt"
	"time"
)

// NotHealthyError reports that a runner was acquired but never answered a
// successful health check within the resolver's timeout budget.
type NotHealthyError struct {
	ID      string
	Timeout time.Duration
}

func (e *NotHealthyError) Error() string {
	return fmt.Sprintf("runner %s did not become healthy within %s", e.ID, e.Timeout)
}

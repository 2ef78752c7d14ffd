package commsutil

import "fmt"

// Default COMMS subjects.
const (
	SubjectDispatch   = "api.dispatch"
	SubjectCompleted  = "dispatch.completed"
	DefaultQueueGroup = "dispatchers"
)

// BuildCompletedSubject builds the granular completion event subject for
// an action group.
func BuildCompletedSubject(area, name string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCompleted, area, name)
}

// BuildGroupSubject builds the subject a dispatcher serving only one group
// listens on, e.g. api.dispatch.billing.invoices.
func BuildGroupSubject(base, area, name string) string {
	if base == "" {
		base = SubjectDispatch
	}
	return fmt.Sprintf("%s.%s.%s", base, area, name)
}

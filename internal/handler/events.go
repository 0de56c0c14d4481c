package handler

// EventRecorder receives the business events worth counting. The server wires
// in the Prometheus-backed implementation from the middleware package.
type EventRecorder interface {
	LoginAttempt(outcome string)
	MealCreated(imageSource string)
	GlucoseReadingCreated()
}

// Login outcomes passed to EventRecorder.LoginAttempt.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginBadRequest         = "bad_request"
	LoginError              = "error"
)

type noopRecorder struct{}

func (noopRecorder) LoginAttempt(string)    {}
func (noopRecorder) MealCreated(string)     {}
func (noopRecorder) GlucoseReadingCreated() {}

func orNoop(events EventRecorder) EventRecorder {
	if events == nil {
		return noopRecorder{}
	}
	return events
}

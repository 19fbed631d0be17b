package events

// Event is a domain event carried by the Bus.
type Event interface {
	EventName() string
}

// UserRegisteredEvent is the name of UserRegistered.
const UserRegisteredEvent = "user.registered"

// UserRegistered is published once per successful registration.
type UserRegistered struct {
	UserID            string
	Email             string
	ConfirmationToken string
}

// EventName implements Event.
func (UserRegistered) EventName() string { return UserRegisteredEvent }

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(evt Event) error
}

package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType, one event type per topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the front desk.
const (
	EventAppointmentBooked    = "frontdesk.appointment.booked.v1"
	EventAppointmentCancelled = "frontdesk.appointment.cancelled.v1"
	EventAppointmentCompleted = "frontdesk.appointment.completed.v1"
	EventReminderDue          = "reminders.reminder.due.v1"
)

package services

// RealtimeNotifier is the narrow fan-out surface the engines depend on.
// The websocket handler satisfies it; a nil notifier disables fan-out.
type RealtimeNotifier interface {
	SendToUser(userID string, eventType string, data map[string]interface{})
	SendToTrip(tripID string, eventType string, data map[string]interface{})
}

package validators

import (
	"strings"

	"gopool/internal/utils"
)

// ValidateMessageContent enforces the content bounds shared by the HTTP
// and websocket entry points.
func ValidateMessageContent(content string) ValidationErrors {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ValidationErrors{{
			Field:   "content",
			Tag:     "required",
			Message: "Message content is required",
		}}
	}
	if len(trimmed) > utils.MaxMessageLength {
		return ValidationErrors{{
			Field:   "content",
			Tag:     "max",
			Message: "Message content exceeds the maximum length",
		}}
	}
	return nil
}

// ValidateMessageTarget ensures exactly one recipient is addressed.
func ValidateMessageTarget(recipientUser, recipientTrip string) ValidationErrors {
	hasUser := recipientUser != ""
	hasTrip := recipientTrip != ""

	if hasUser == hasTrip {
		return ValidationErrors{{
			Field:   "recipient",
			Tag:     "exactly_one",
			Message: "Exactly one of recipient_user or recipient_trip must be set",
		}}
	}
	if hasTrip && !IsValidObjectID(recipientTrip) {
		return ValidationErrors{{
			Field:   "recipient_trip",
			Tag:     "object_id",
			Message: "Invalid ID format",
		}}
	}
	return nil
}

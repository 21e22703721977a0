package validators

import (
	"gopool/internal/models"
)

// ValidateRequestKind allows only kinds a client may create directly.
func ValidateRequestKind(kind models.RequestKind) ValidationErrors {
	if !kind.Respondable() {
		return ValidationErrors{{
			Field:   "kind",
			Tag:     "oneof",
			Message: "Unsupported request kind",
		}}
	}
	return nil
}

func ValidateDecision(decision models.Decision) ValidationErrors {
	switch decision {
	case models.DecisionAccept, models.DecisionReject:
		return nil
	}
	return ValidationErrors{{
		Field:   "decision",
		Tag:     "oneof",
		Message: "Decision must be accept or reject",
	}}
}

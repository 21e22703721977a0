package validators

import (
	"time"

	"gopool/internal/utils"
)

// ValidateTripSchedule checks the departure/return pair beyond what
// struct tags can express.
func ValidateTripSchedule(departureAt time.Time, returnAt *time.Time) ValidationErrors {
	var errs ValidationErrors

	if !departureAt.After(time.Now()) {
		errs = append(errs, ValidationError{
			Field:   "departure_at",
			Tag:     "future_date",
			Message: "Departure must be in the future",
		})
	}
	if returnAt != nil && !returnAt.After(departureAt) {
		errs = append(errs, ValidationError{
			Field:   "return_at",
			Tag:     "after_departure",
			Message: "Return must be after departure",
		})
	}

	return errs
}

func ValidateSeatCount(maxPassengers int) ValidationErrors {
	if maxPassengers < 1 || maxPassengers > utils.MaxTripPassengers {
		return ValidationErrors{{
			Field:   "max_passengers",
			Tag:     "range",
			Message: "Seat count must be between 1 and 8",
		}}
	}
	return nil
}

func ValidateSearchRadius(radiusKM float64) float64 {
	if radiusKM <= 0 || radiusKM > utils.MaxSearchRadius {
		return utils.DefaultSearchRadius
	}
	return radiusKM
}

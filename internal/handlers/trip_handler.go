package handlers

import (
	"strconv"
	"time"

	"gopool/internal/models"
	"gopool/internal/services"
	"gopool/internal/utils"
	"gopool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripHandler struct {
	tripService services.TripService
}

func NewTripHandler(tripService services.TripService) *TripHandler {
	return &TripHandler{
		tripService: tripService,
	}
}

// CreateTrip creates a draft or published trip for the calling driver.
func (h *TripHandler) CreateTrip(c *gin.Context) {
	driverID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.CreateTripInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateStruct(&input); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}
	if errs := validators.ValidateTripSchedule(input.DepartureAt, input.ReturnAt); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}
	if errs := validators.ValidateSeatCount(input.MaxPassengers); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), driverID, &input)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Trip created", trip)
}

type updateScheduleRequest struct {
	DepartureAt time.Time  `json:"departure_at" binding:"required"`
	ReturnAt    *time.Time `json:"return_at"`
}

// UpdateSchedule moves the departure/return window of a trip.
func (h *TripHandler) UpdateSchedule(c *gin.Context) {
	driverID, ok := currentUserID(c)
	if !ok {
		return
	}

	tripID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return
	}

	var request updateScheduleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateTripSchedule(request.DepartureAt, request.ReturnAt); errs != nil {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	trip, err := h.tripService.UpdateSchedule(c.Request.Context(), tripID, driverID, request.DepartureAt, request.ReturnAt)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip schedule updated", trip)
}

// GetTrip fetches one trip.
func (h *TripHandler) GetTrip(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	tripID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return
	}

	trip, err := h.tripService.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip retrieved", trip)
}

// GetMyTrips lists the calling driver's trips.
func (h *TripHandler) GetMyTrips(c *gin.Context) {
	driverID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	trips, total, err := h.tripService.GetDriverTrips(c.Request.Context(), driverID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Trips retrieved", trips, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

// SearchTrips finds active trips near an origin point.
func (h *TripHandler) SearchTrips(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		utils.BadRequestResponse(c, "lat and lng query parameters are required")
		return
	}

	radiusKM, _ := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)
	radiusKM = validators.ValidateSearchRadius(radiusKM)

	params := utils.GetPaginationParams(c)
	results, total, err := h.tripService.SearchTrips(c.Request.Context(), lat, lng, radiusKM, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Trips retrieved", results, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
	})
}

type transitionRequest struct {
	Status models.TripStatus `json:"status" binding:"required"`
	Reason string            `json:"reason"`
}

// Transition applies a driver-initiated lifecycle change.
func (h *TripHandler) Transition(c *gin.Context) {
	driverID, ok := currentUserID(c)
	if !ok {
		return
	}

	tripID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return
	}

	var request transitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	trip, err := h.tripService.Transition(c.Request.Context(), tripID, driverID, request.Status, request.Reason)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip transitioned", trip)
}

// AbandonTrip removes the caller from the trip's passenger list.
func (h *TripHandler) AbandonTrip(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	tripID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid trip ID")
		return
	}

	trip, err := h.tripService.AbandonTrip(c.Request.Context(), tripID, userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip abandoned", trip)
}

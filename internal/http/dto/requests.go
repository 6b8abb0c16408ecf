package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Email        string  `json:"email"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	FlareAddress *string `json:"flare_address,omitempty"`
}

type QuoteRequest struct {
	AirlineCode           string          `json:"airline_code"`
	FlightNumber          string          `json:"flight_number"`
	DepartureAirport      string          `json:"departure_airport"`
	ArrivalAirport        string          `json:"arrival_airport"`
	ScheduledDeparture    time.Time       `json:"scheduled_departure"`
	ScheduledArrival      time.Time       `json:"scheduled_arrival"`
	CoverageAmount        decimal.Decimal `json:"coverage_amount"`
	DelayThresholdMinutes int             `json:"delay_threshold_minutes,omitempty"`
}

type InitiateClaimRequest struct {
	PolicyID      string `json:"policy_id"`
	PayoutAddress string `json:"payout_address"`
}

type AutoClaimRequest struct {
	PolicyID      string `json:"policy_id"`
	PayoutAddress string `json:"payout_address"`
}

type FlightEventRequest struct {
	AirlineCode   string    `json:"airline_code"`
	FlightNumber  string    `json:"flight_number"`
	DepartureDate time.Time `json:"departure_date"`
	FlightStatus  string    `json:"flight_status"`
	DelayMinutes  int       `json:"delay_minutes"`
}

package services

import (
	"strings"
	"time"
)

// Risk tiers, from score thresholds.
const (
	RiskTierVeryLow  = "very_low"
	RiskTierLow      = "low"
	RiskTierMedium   = "medium"
	RiskTierHigh     = "high"
	RiskTierVeryHigh = "very_high"
)

// RiskAssessment is the scoring output recorded on the policy at quote time.
type RiskAssessment struct {
	Score            float64 `json:"score"` // 0..100
	DelayProbability float64 `json:"delay_probability"`
	Tier             string  `json:"tier"`
	Factors          map[string]float64 `json:"factors"`
}

// Historical on-time performance by airline, expressed as the share of
// departures delayed 15+ minutes. Sourced from BTS yearly averages; carriers
// not listed fall back to the industry mean.
var airlineDelayRates = map[string]float64{
	"DL": 0.14, "AS": 0.15, "HA": 0.12, "UA": 0.18, "AA": 0.21,
	"WN": 0.23, "B6": 0.27, "NK": 0.25, "F9": 0.29, "G4": 0.26,
	"LH": 0.19, "BA": 0.20, "AF": 0.22, "KL": 0.17, "EK": 0.13,
	"QR": 0.12, "SQ": 0.11, "TK": 0.24, "RY": 0.21, "U2": 0.22,
}

const defaultAirlineDelayRate = 0.20

// Congestion factor per airport, 0 (empty) to 1 (chronically congested hub).
var airportCongestion = map[string]float64{
	"ATL": 0.75, "ORD": 0.80, "JFK": 0.85, "LGA": 0.90, "EWR": 0.95,
	"LAX": 0.75, "SFO": 0.85, "DFW": 0.65, "DEN": 0.60, "SEA": 0.55,
	"MIA": 0.70, "BOS": 0.65, "LHR": 0.90, "CDG": 0.80, "AMS": 0.75,
	"FRA": 0.70, "IST": 0.75, "DXB": 0.60, "SIN": 0.45, "HND": 0.40,
}

const defaultAirportCongestion = 0.50

// RiskScorer derives a delay risk score for a flight from airline history,
// airport congestion, and scheduling factors. It is deterministic so quotes
// are reproducible and cacheable.
type RiskScorer struct{}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

type FlightRiskInput struct {
	AirlineCode        string
	FlightNumber       string
	DepartureAirport   string
	ArrivalAirport     string
	ScheduledDeparture time.Time
}

func (rs *RiskScorer) Score(in FlightRiskInput) RiskAssessment {
	factors := make(map[string]float64)

	rate, ok := airlineDelayRates[strings.ToUpper(in.AirlineCode)]
	if !ok {
		rate = defaultAirlineDelayRate
	}
	airlineScore := rate * 100 // 0..~30
	factors["airline"] = airlineScore

	depCongestion := congestionFor(in.DepartureAirport)
	arrCongestion := congestionFor(in.ArrivalAirport)
	// Departure airport dominates departure delays.
	airportScore := depCongestion*20 + arrCongestion*8
	factors["airports"] = airportScore

	timeScore := timeOfDayScore(in.ScheduledDeparture)
	factors["time_of_day"] = timeScore

	dayScore := dayOfWeekScore(in.ScheduledDeparture)
	factors["day_of_week"] = dayScore

	seasonScore := seasonalScore(in.ScheduledDeparture)
	factors["season"] = seasonScore

	score := airlineScore + airportScore + timeScore + dayScore + seasonScore
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	probability := score / 130
	if probability > 0.95 {
		probability = 0.95
	}

	return RiskAssessment{
		Score:            score,
		DelayProbability: probability,
		Tier:             tierForScore(score),
		Factors:          factors,
	}
}

func congestionFor(airport string) float64 {
	if c, ok := airportCongestion[strings.ToUpper(airport)]; ok {
		return c
	}
	return defaultAirportCongestion
}

// Delays accumulate through the day and peak in the evening bank; the first
// departures of the morning are the most reliable.
func timeOfDayScore(t time.Time) float64 {
	switch hour := t.Hour(); {
	case hour < 9:
		return 2
	case hour < 12:
		return 5
	case hour < 16:
		return 9
	case hour < 21:
		return 14
	default:
		return 10
	}
}

func dayOfWeekScore(t time.Time) float64 {
	switch t.Weekday() {
	case time.Friday, time.Sunday:
		return 8
	case time.Monday, time.Thursday:
		return 5
	default:
		return 3
	}
}

func seasonalScore(t time.Time) float64 {
	switch t.Month() {
	case time.December, time.January, time.February:
		return 10 // winter weather
	case time.June, time.July, time.August:
		return 8 // thunderstorm season and peak load
	case time.November:
		return 6 // holiday traffic
	default:
		return 3
	}
}

func tierForScore(score float64) string {
	switch {
	case score < 20:
		return RiskTierVeryLow
	case score < 35:
		return RiskTierLow
	case score < 55:
		return RiskTierMedium
	case score < 75:
		return RiskTierHigh
	default:
		return RiskTierVeryHigh
	}
}

package model

import "time"

type Appointment struct {
	ID               string
	HospitalID       string
	ProviderID       string
	LocationID       *string
	PatientName      string
	PatientEmail     string
	PatientPhone     string
	AppointmentDate  time.Time
	StartMinute      int
	DurationMins     int
	ConsultationType string
	Status           string
	CancelledAt      *time.Time
	CancelReason     string
	CreatedAt        time.Time
}

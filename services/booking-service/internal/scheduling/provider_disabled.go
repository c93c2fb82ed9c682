//go:build !protogen

package scheduling

import "context"

type WindowSlots struct {
	WindowID            string
	LocationID          string
	ConsultationType    string
	SlotDurationMinutes int
	MaxPatientsPerSlot  int
	Slots               []string
}

type Provider interface {
	GetProviderAvailability(ctx context.Context, providerID, date, locationID, consultationType string) ([]WindowSlots, error)
}

func NewProvider(_ string) (Provider, error) {
	return nil, nil
}

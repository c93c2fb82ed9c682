//go:build protogen

package scheduling

import (
	"context"
	"time"

	"github.com/careslot/careslot/libs/grpcx"
	schedulingv1 "github.com/careslot/careslot/protos/gen/scheduling/v1"
)

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

type grpcProvider struct {
	client schedulingv1.SchedulingServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: schedulingv1.NewSchedulingServiceClient(conn)}, nil
}

func (p *grpcProvider) GetProviderAvailability(ctx context.Context, providerID, date, locationID, consultationType string) ([]WindowSlots, error) {
	resp, err := p.client.GetProviderAvailability(ctx, &schedulingv1.ProviderAvailabilityRequest{
		ProviderId:       providerID,
		Date:             date,
		LocationId:       locationID,
		ConsultationType: consultationType,
	})
	if err != nil {
		return nil, err
	}
	out := make([]WindowSlots, 0, len(resp.GetWindows()))
	for _, w := range resp.GetWindows() {
		out = append(out, WindowSlots{
			WindowID:            w.GetWindowId(),
			LocationID:          w.GetLocationId(),
			ConsultationType:    w.GetConsultationType(),
			SlotDurationMinutes: int(w.GetSlotDurationMinutes()),
			MaxPatientsPerSlot:  int(w.GetMaxPatientsPerSlot()),
			Slots:               w.GetSlots(),
		})
	}
	return out, nil
}

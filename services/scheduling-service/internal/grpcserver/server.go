//go:build protogen

package grpcserver

import (
	"context"
	"errors"

	schedulingv1 "github.com/careslot/careslot/protos/gen/scheduling/v1"
	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type server struct {
	schedulingv1.UnimplementedSchedulingServiceServer
	svc *availability.Service
}

func Register(grpcServer *grpc.Server, svc *availability.Service) {
	schedulingv1.RegisterSchedulingServiceServer(grpcServer, &server{svc: svc})
}

func (s *server) GetProviderAvailability(ctx context.Context, req *schedulingv1.ProviderAvailabilityRequest) (*schedulingv1.ProviderAvailabilityResponse, error) {
	if req.GetProviderId() == "" || req.GetDate() == "" {
		return nil, status.Error(codes.InvalidArgument, "provider_id and date are required")
	}

	var locationID *string
	if loc := req.GetLocationId(); loc != "" {
		locationID = &loc
	}

	entries, err := s.svc.GetAvailableSlots(ctx, req.GetProviderId(), req.GetDate(), locationID, req.GetConsultationType())
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidDate) {
			return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
		}
		return nil, status.Error(codes.Internal, "availability lookup failed")
	}

	resp := &schedulingv1.ProviderAvailabilityResponse{
		ProviderId:  req.GetProviderId(),
		Date:        req.GetDate(),
		GeneratedAt: timestamppb.Now(),
	}
	for _, e := range entries {
		win := &schedulingv1.AvailabilityWindow{
			WindowId:            e.WindowID,
			ConsultationType:    e.ConsultationType,
			SlotDurationMinutes: int32(e.SlotDurationMins),
			MaxPatientsPerSlot:  int32(e.MaxPatientsPerSlot),
			ConsultationFee:     e.ConsultationFee,
			Currency:            e.Currency,
			Slots:               e.Slots,
		}
		if e.LocationID != nil {
			win.LocationId = *e.LocationID
		}
		resp.Windows = append(resp.Windows, win)
	}
	return resp, nil
}

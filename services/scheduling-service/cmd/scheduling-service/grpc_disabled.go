//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *availability.Service) error {
	return nil
}

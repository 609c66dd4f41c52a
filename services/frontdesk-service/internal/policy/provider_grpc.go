//go:build protogen

package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/dentaldesk/libs/grpcx"
	clinicv1 "github.com/example/dentaldesk/protos/gen/clinic/v1"
)

type grpcProvider struct {
	client clinicv1.ClinicServiceClient
}

func NewClinicPolicyProvider(logger *slog.Logger, fallback []time.Duration, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider(fallback), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc policy provider unavailable, using fallback", "err", err)
		return NewStaticProvider(fallback), nil
	}

	logger.Info("grpc policy provider enabled", "addr", addr)
	return &grpcProvider{client: clinicv1.NewClinicServiceClient(conn)}, nil
}

func (p *grpcProvider) ReminderOffsets(ctx context.Context, clinicID string) ([]time.Duration, error) {
	resp, err := p.client.GetClinicProfile(ctx, &clinicv1.ClinicProfileRequest{ClinicId: clinicID})
	if err != nil {
		return nil, err
	}
	var offsets []time.Duration
	for _, mins := range resp.GetReminderPolicy().GetReminderOffsetsMinutes() {
		if mins <= 0 {
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	return offsets, nil
}

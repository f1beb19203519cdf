package test

import (
	"context"
	"strings"

	"connectai/internal/testsupport/seeds"
)

// SeedDirectory creates the minimal tenant the integration tests dial into
// (idempotent)
func SeedDirectory(ctx context.Context, s *seeds.Seeder) error {
	log := s.Log()

	business, err := s.Business().
		WithName("Test Tenant").
		WithDomain("test.example").
		Insert()
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			log.Infow("Business already exists, skipping", "domain", "test.example")
			return nil
		}
		return err
	}

	_, err = s.Agent().
		WithBusiness(business.ID).
		WithName("Test Agent").
		WithTools([]string{"end_call"}).
		Insert()
	return err
}

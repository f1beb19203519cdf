package dev

import (
	"context"
	"strings"

	"connectai/internal/testsupport/seeds"
)

// SeedDirectory creates a demo tenant with two agents and a routing rule that
// sends a dedicated support line to the second agent (idempotent)
func SeedDirectory(ctx context.Context, s *seeds.Seeder) error {
	log := s.Log()

	business, err := s.Business().
		WithName("Acme Answering").
		WithDomain("acme.example").
		Insert()
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			log.Infow("Business already exists, skipping", "domain", "acme.example")
			return nil
		}
		return err
	}
	log.Infow("Created business", "domain", business.Domain, "id", business.ID)

	reception, err := s.Agent().
		WithBusiness(business.ID).
		WithName("Reception").
		WithSystemPrompt(`You are the phone receptionist for Acme Answering.
Greet callers, answer questions about opening hours and services, and take
messages. Keep answers short; this is a voice call. When the caller is done,
use the end_call tool with the appropriate outcome.`).
		WithVoice("Sulafat").
		WithTools([]string{"end_call", "get_current_time"}).
		Insert()
	if err != nil {
		return err
	}
	log.Infow("Created agent", "name", reception.Name, "id", reception.ID)

	support, err := s.Agent().
		WithBusiness(business.ID).
		WithName("Support").
		WithSystemPrompt(`You are the support line for Acme Answering. Help the
caller troubleshoot their issue step by step. Escalate with the end_call tool
when the problem needs a human.`).
		WithVoice("Charon").
		WithTools([]string{"end_call", "get_current_time"}).
		Insert()
	if err != nil {
		return err
	}
	log.Infow("Created agent", "name", support.Name, "id", support.ID)

	route, err := s.Route().
		WithBusiness(business.ID).
		WithAgent(support.ID).
		WithDialedPattern("15559870000").
		WithPriority(10).
		Insert()
	if err != nil {
		return err
	}
	log.Infow("Created route", "id", route.ID, "dialed", route.DialedPattern, "agent", support.Name)

	return nil
}

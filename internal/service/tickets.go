package service

import (
	"context"
	"strings"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/events"
)

func (s *Service) IntakeTicket(ctx context.Context, req domain.TicketIntakeRequest) (domain.ServiceTicket, error) {
	if req.CashierID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.CashierID = actor.StaffID
		}
	}
	if _, err := s.repo.GetTechnician(ctx, req.TechnicianID); err != nil {
		return domain.ServiceTicket{}, notFound(err, ErrTechnicianNotFound)
	}
	if req.MemberID != "" {
		if _, err := s.repo.GetMember(ctx, req.MemberID); err != nil {
			return domain.ServiceTicket{}, notFound(err, ErrMemberNotFound)
		}
	}

	created, err := s.repo.CreateTicket(ctx, domain.ServiceTicket{
		MemberID:     req.MemberID,
		CashierID:    req.CashierID,
		TechnicianID: req.TechnicianID,
		Equipment:    strings.TrimSpace(req.Equipment),
		Complaint:    strings.TrimSpace(req.Complaint),
		Status:       domain.TicketProses,
		IntakeAt:     s.now().UTC(),
	})
	if err != nil {
		return domain.ServiceTicket{}, notFound(err, ErrTechnicianNotFound)
	}
	return *created, nil
}

// AdvanceTicket moves a ticket one step: Proses to Selesai (cost required),
// Selesai to Diambil (cost ignored). Diambil is terminal.
func (s *Service) AdvanceTicket(ctx context.Context, ticketID string, cost *int64) (domain.ServiceTicket, error) {
	current, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.ServiceTicket{}, notFound(err, ErrTicketNotFound)
	}

	next := *current
	switch current.Status {
	case domain.TicketProses:
		if cost == nil || *cost < 0 {
			return domain.ServiceTicket{}, ErrInvalidCost
		}
		c := *cost
		today := s.today()
		next.Status = domain.TicketSelesai
		next.Cost = &c
		next.CompletedOn = &today
	case domain.TicketSelesai:
		next.Status = domain.TicketDiambil
	default:
		return domain.ServiceTicket{}, ErrTerminalState
	}

	updated, err := s.repo.TransitionTicket(ctx, next, current.Status)
	if err != nil {
		return domain.ServiceTicket{}, notFound(err, ErrTicketNotFound)
	}

	s.publish(ctx, events.TypeTicketAdvanced, updated.ID, events.TicketAdvancedPayload{
		TicketID:     updated.ID,
		TechnicianID: updated.TechnicianID,
		From:         string(current.Status),
		To:           string(updated.Status),
		Cost:         updated.Cost,
	})
	return *updated, nil
}

// HasOpenTicket reports whether the technician still has work in Proses.
func (s *Service) HasOpenTicket(ctx context.Context, technicianID string) (bool, error) {
	n, err := s.repo.CountTickets(ctx, technicianID, domain.TicketProses)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveTickets returns tickets not yet picked up, oldest intake first.
func (s *Service) ListActiveTickets(ctx context.Context) ([]domain.ServiceTicket, error) {
	return s.repo.ListTicketsByStatus(ctx, domain.TicketProses, domain.TicketSelesai)
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
)

func TestTicketLifecycle(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{
		CashierID: "STF-KASIR", TechnicianID: "TEK-1", Equipment: "Hand tractor", Complaint: "Mesin mati",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketProses, ticket.Status)
	assert.Nil(t, ticket.Cost)
	assert.Nil(t, ticket.CompletedOn)

	busy, err := f.svc.HasOpenTicket(f.ctx, "TEK-1")
	require.NoError(t, err)
	assert.True(t, busy)

	_, err = f.svc.AdvanceTicket(f.ctx, ticket.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidCost)
	_, err = f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(-5))
	assert.ErrorIs(t, err, ErrInvalidCost)
	unchanged, err := f.repo.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketProses, unchanged.Status)

	done, err := f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(150000))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketSelesai, done.Status)
	require.NotNil(t, done.Cost)
	assert.Equal(t, int64(150000), *done.Cost)
	require.NotNil(t, done.CompletedOn)
	assert.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), *done.CompletedOn)

	busy, err = f.svc.HasOpenTicket(f.ctx, "TEK-1")
	require.NoError(t, err)
	assert.False(t, busy)

	picked, err := f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(999))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketDiambil, picked.Status)
	assert.Equal(t, int64(150000), *picked.Cost)

	_, err = f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(1))
	assert.ErrorIs(t, err, ErrTerminalState)
	final, err := f.repo.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, picked, *final)
}

func TestAdvanceTicketZeroCostIsAllowed(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{TechnicianID: "TEK-1", Equipment: "Sprayer", Complaint: "Garansi"})
	require.NoError(t, err)

	done, err := f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), *done.Cost)
}

func TestTicketNotFoundAndIntakeChecks(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdvanceTicket(f.ctx, "svc-missing", int64Ptr(1))
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{TechnicianID: "TEK-404", Equipment: "Pompa"})
	assert.ErrorIs(t, err, ErrTechnicianNotFound)

	_, err = f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{TechnicianID: "TEK-1", MemberID: "mbr-404", Equipment: "Pompa"})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestTransitionLostRaceIsConflict(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{TechnicianID: "TEK-1", Equipment: "Pompa"})
	require.NoError(t, err)
	_, err = f.svc.AdvanceTicket(f.ctx, ticket.ID, int64Ptr(1000))
	require.NoError(t, err)

	stale := ticket
	stale.Status = domain.TicketSelesai
	_, err = f.repo.TransitionTicket(f.ctx, stale, domain.TicketProses)
	assert.ErrorIs(t, err, ErrConcurrentStockConflict)
}

func TestListActiveTickets(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		f.now = testToday.Add(time.Duration(i) * time.Minute)
		ticket, err := f.svc.IntakeTicket(f.ctx, domain.TicketIntakeRequest{TechnicianID: "TEK-2", Equipment: "Mesin"})
		require.NoError(t, err)
		ids = append(ids, ticket.ID)
	}
	_, err := f.svc.AdvanceTicket(f.ctx, ids[1], int64Ptr(5000))
	require.NoError(t, err)
	_, err = f.svc.AdvanceTicket(f.ctx, ids[2], int64Ptr(5000))
	require.NoError(t, err)
	_, err = f.svc.AdvanceTicket(f.ctx, ids[2], nil)
	require.NoError(t, err)

	active, err := f.svc.ListActiveTickets(f.ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, ids[0], active[0].ID)
	assert.Equal(t, domain.TicketSelesai, active[1].Status)
}

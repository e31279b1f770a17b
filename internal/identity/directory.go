// Package identity answers who is who: staff, suppliers and technicians.
// Credentials are handled elsewhere; this package only resolves records.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
)

var (
	ErrStaffNotFound      = fmt.Errorf("staff %w", store.ErrNotFound)
	ErrSupplierNotFound   = fmt.Errorf("supplier %w", store.ErrNotFound)
	ErrTechnicianNotFound = fmt.Errorf("technician %w", store.ErrNotFound)
	ErrTechnicianBusy     = fmt.Errorf("technician has tickets in progress: %w", store.ErrConflict)
	ErrInvalidRecord      = errors.New("name is required")
)

// TicketChecker is satisfied by the service layer.
type TicketChecker interface {
	HasOpenTicket(ctx context.Context, technicianID string) (bool, error)
}

type Directory struct {
	repo    store.Directory
	tickets TicketChecker
}

func NewDirectory(repo store.Directory, tickets TicketChecker) *Directory {
	return &Directory{repo: repo, tickets: tickets}
}

func (d *Directory) Staff(ctx context.Context, id string) (domain.Staff, error) {
	staff, err := d.repo.GetStaff(ctx, id)
	if err != nil {
		return domain.Staff{}, mapNotFound(err, ErrStaffNotFound)
	}
	return *staff, nil
}

func (d *Directory) Supplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := d.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, mapNotFound(err, ErrSupplierNotFound)
	}
	return *supplier, nil
}

func (d *Directory) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return d.repo.ListSuppliers(ctx)
}

func (d *Directory) AddSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return domain.Supplier{}, ErrInvalidRecord
	}
	created, err := d.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (d *Directory) Technician(ctx context.Context, id string) (domain.Technician, error) {
	technician, err := d.repo.GetTechnician(ctx, id)
	if err != nil {
		return domain.Technician{}, mapNotFound(err, ErrTechnicianNotFound)
	}
	return *technician, nil
}

func (d *Directory) ListTechnicians(ctx context.Context) ([]domain.Technician, error) {
	return d.repo.ListTechnicians(ctx)
}

func (d *Directory) AddTechnician(ctx context.Context, technician domain.Technician) (domain.Technician, error) {
	technician.Name = strings.TrimSpace(technician.Name)
	if technician.Name == "" {
		return domain.Technician{}, ErrInvalidRecord
	}
	created, err := d.repo.CreateTechnician(ctx, technician)
	if err != nil {
		return domain.Technician{}, err
	}
	return *created, nil
}

// DeleteTechnician refuses while the technician still has a ticket in Proses.
func (d *Directory) DeleteTechnician(ctx context.Context, id string) error {
	if _, err := d.Technician(ctx, id); err != nil {
		return err
	}
	busy, err := d.tickets.HasOpenTicket(ctx, id)
	if err != nil {
		return err
	}
	if busy {
		return ErrTechnicianBusy
	}

	err = d.repo.DeleteTechnician(ctx, id)
	switch {
	case errors.Is(err, store.ErrConflict):
		// A ticket was opened between the check and the delete.
		return ErrTechnicianBusy
	case err != nil:
		return mapNotFound(err, ErrTechnicianNotFound)
	}
	return nil
}

func mapNotFound(err error, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}

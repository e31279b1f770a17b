package service

import (
	"context"
	"errors"
	"strings"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
)

func (s *Service) RegisterMember(ctx context.Context, reg domain.MemberRegistration) (domain.Member, error) {
	member := domain.Member{
		Name:    strings.TrimSpace(reg.Name),
		Phone:   strings.TrimSpace(reg.Phone),
		Address: strings.TrimSpace(reg.Address),
	}
	if member.Name == "" || member.Phone == "" {
		return domain.Member{}, ErrInvalidMember
	}

	created, err := s.repo.CreateMember(ctx, member)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Member{}, ErrDuplicateMember
		}
		return domain.Member{}, err
	}
	return *created, nil
}

func (s *Service) FindMemberByPhone(ctx context.Context, phone string) (domain.Member, error) {
	member, err := s.repo.FindMemberByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return domain.Member{}, notFound(err, ErrMemberNotFound)
	}
	return *member, nil
}

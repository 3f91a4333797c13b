package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/pricing"
)

// Querier captures the store methods required by the voucher service.
type Querier interface {
	GetActiveVoucherByCode(ctx context.Context, code string) (Voucher, error)
	ListVouchers(ctx context.Context) ([]Voucher, error)
	CreateVoucher(ctx context.Context, v Voucher) (Voucher, error)
	DeleteVoucher(ctx context.Context, id string) error
}

// Service validates voucher codes and manages the voucher table.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// CreateInput is the admin payload for a new voucher. Amount is in ringgit.
type CreateInput struct {
	Code      string    `json:"code" validate:"required,max=32"`
	Amount    string    `json:"amount" validate:"required"`
	ValidFrom time.Time `json:"validFrom" validate:"required"`
	ValidTo   time.Time `json:"validTo" validate:"required"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate looks up an active voucher by code and checks its window.
func (s *Service) Validate(ctx context.Context, code string) (Voucher, error) {
	if s == nil || s.Q == nil {
		return Voucher{}, errors.New("voucher service not configured")
	}
	code = NormalizeCode(code)
	if code == "" {
		observe("not_found")
		return Voucher{}, ErrVoucherNotFound
	}
	v, err := s.Q.GetActiveVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrVoucherNotFound) {
			observe("not_found")
		}
		return Voucher{}, err
	}
	if err := v.Rule().Validate(s.now()); err != nil {
		observe("expired")
		return Voucher{}, err
	}
	observe("ok")
	return v, nil
}

// Create validates and inserts a voucher.
func (s *Service) Create(ctx context.Context, in CreateInput) (Voucher, error) {
	if s == nil || s.Q == nil {
		return Voucher{}, errors.New("voucher service not configured")
	}
	if err := common.ValidateStruct(in); err != nil {
		return Voucher{}, err
	}
	amount, err := pricing.ParseMoney(in.Amount)
	if err != nil || amount <= 0 {
		return Voucher{}, common.ValidationError("amount must be a positive ringgit value", err, map[string]string{"amount": "gt"})
	}
	if !in.ValidTo.After(in.ValidFrom) {
		return Voucher{}, common.ValidationError("validTo must be after validFrom", nil, map[string]string{"validTo": "gtfield"})
	}
	created, err := s.Q.CreateVoucher(ctx, Voucher{
		Code:      NormalizeCode(in.Code),
		Amount:    amount,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
		Active:    true,
	})
	if err != nil {
		return Voucher{}, fmt.Errorf("create voucher: %w", err)
	}
	return created, nil
}

// List returns vouchers newest window first.
func (s *Service) List(ctx context.Context) ([]Voucher, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("voucher service not configured")
	}
	return s.Q.ListVouchers(ctx)
}

// Delete removes a voucher by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.Q == nil {
		return errors.New("voucher service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrVoucherNotFound
	}
	return s.Q.DeleteVoucher(ctx, id)
}

func observe(result string) {
	obs.Inc(obs.VoucherValidationTotal, result)
}

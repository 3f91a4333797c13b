package voucher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memQueries struct {
	mu       sync.Mutex
	vouchers []Voucher
}

func (m *memQueries) GetActiveVoucherByCode(_ context.Context, code string) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vouchers {
		if v.Code == code && v.Active {
			return v, nil
		}
	}
	return Voucher{}, ErrVoucherNotFound
}

func (m *memQueries) ListVouchers(context.Context) ([]Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voucher(nil), m.vouchers...), nil
}

func (m *memQueries) CreateVoucher(_ context.Context, v Voucher) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vouchers {
		if existing.Code == v.Code {
			return Voucher{}, ErrDuplicateCode
		}
	}
	v.ID = uuid.NewString()
	m.vouchers = append(m.vouchers, v)
	return v, nil
}

func (m *memQueries) DeleteVoucher(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.vouchers {
		if v.ID == id {
			m.vouchers = append(m.vouchers[:i], m.vouchers[i+1:]...)
			return nil
		}
	}
	return ErrVoucherNotFound
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRuleWindowIsInclusive(t *testing.T) {
	rule := Rule{Code: "SAVE50", Amount: 5000, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour)}
	cases := []struct {
		name string
		at   time.Time
		want error
	}{
		{"inside", now, nil},
		{"at start", rule.ValidFrom, nil},
		{"at end", rule.ValidTo, nil},
		{"before start", rule.ValidFrom.Add(-time.Nanosecond), ErrVoucherExpired},
		{"after end", rule.ValidTo.Add(time.Nanosecond), ErrVoucherExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := rule.Validate(tc.at); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateNormalisesCode(t *testing.T) {
	q := &memQueries{vouchers: []Voucher{{ID: "1", Code: "SAVE50", Amount: 5000, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour), Active: true}}}
	svc := &Service{Q: q, Now: func() time.Time { return now }}
	v, err := svc.Validate(context.Background(), "  save50 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Amount != 5000 {
		t.Fatalf("expected 5000 sen, got %d", v.Amount)
	}
}

func TestValidateRejectsUnknownInactiveAndPast(t *testing.T) {
	q := &memQueries{vouchers: []Voucher{
		{ID: "1", Code: "OLD50", Amount: 5000, ValidFrom: now.Add(-48 * time.Hour), ValidTo: now.Add(-24 * time.Hour), Active: true},
		{ID: "2", Code: "OFF", Amount: 5000, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour), Active: false},
		{ID: "3", Code: "SOON", Amount: 5000, ValidFrom: now.Add(time.Hour), ValidTo: now.Add(2 * time.Hour), Active: true},
	}}
	svc := &Service{Q: q, Now: func() time.Time { return now }}
	ctx := context.Background()

	if _, err := svc.Validate(ctx, "NOPE"); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Validate(ctx, ""); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected not found for blank code, got %v", err)
	}
	if _, err := svc.Validate(ctx, "OFF"); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected inactive voucher to be not found, got %v", err)
	}
	if _, err := svc.Validate(ctx, "OLD50"); !errors.Is(err, ErrVoucherExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := svc.Validate(ctx, "SOON"); !errors.Is(err, ErrVoucherExpired) {
		t.Fatalf("expected not-yet-valid voucher to be expired, got %v", err)
	}
}

func TestCreateValidatesAndUppercases(t *testing.T) {
	q := &memQueries{}
	svc := &Service{Q: q}
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{Code: "save50", Amount: "50.00", ValidFrom: now, ValidTo: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Code != "SAVE50" || v.Amount != 5000 || !v.Active {
		t.Fatalf("unexpected voucher %+v", v)
	}

	if _, err := svc.Create(ctx, CreateInput{Code: "SAVE50", Amount: "10", ValidFrom: now, ValidTo: now.Add(time.Hour)}); !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Code: "ZERO", Amount: "0", ValidFrom: now, ValidTo: now.Add(time.Hour)}); err == nil || !strings.Contains(err.Error(), "positive") {
		t.Fatalf("expected amount validation error, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Code: "BACKWARDS", Amount: "5", ValidFrom: now, ValidTo: now}); err == nil {
		t.Fatal("expected window validation error")
	}
	if _, err := svc.Create(ctx, CreateInput{Amount: "5", ValidFrom: now, ValidTo: now.Add(time.Hour)}); err == nil {
		t.Fatal("expected missing code error")
	}

	if err := svc.Delete(ctx, v.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, v.ID); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

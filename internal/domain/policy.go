package domain

import (
	"fmt"
	"time"
)

// InsurancePolicy — страховой полис на отправление.
// Жизненный цикл: Created -> PremiumPaid -> (Claimed <-> declined) -> Approved -> Paid.
// Состояния не хранятся отдельным полем, а выводятся из флагов;
// все переходы охраняются методами ниже, «сырых» мутаций быть не должно.
type InsurancePolicy struct {
	ID         string `json:"policy_id"`
	ShipmentID string `json:"shipment_id"` // Ссылка, не владение: записью владеет реестр отправлений
	Holder     string `json:"holder"`

	// Суммы фиксируются при создании и неизменяемы (минорные единицы, центы)
	PremiumAmount int64 `json:"premium_amount"`
	ClaimAmount   int64 `json:"claim_amount"`

	Active        bool `json:"is_active"`         // false ровно один раз — при успешной выплате
	PremiumPaid   bool `json:"premium_paid"`      // false -> true один раз
	Claimed       bool `json:"is_claimed"`        // Может циклиться: файл -> decline -> файл
	ClaimApproved bool `json:"is_claim_approved"` // Монотонный

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInsurancePolicy валидирует суммы и держателя
func NewInsurancePolicy(id, shipmentID, holder string, premium, claim int64) (*InsurancePolicy, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: policy id is empty", ErrInvalidInput)
	}
	if holder == "" {
		return nil, fmt.Errorf("%w: holder identity is empty", ErrInvalidInput)
	}
	if premium <= 0 || claim <= 0 {
		return nil, fmt.Errorf("%w: premium and claim amounts must be positive", ErrInvalidInput)
	}

	now := time.Now()
	return &InsurancePolicy{
		ID:            id,
		ShipmentID:    shipmentID,
		Holder:        holder,
		PremiumAmount: premium,
		ClaimAmount:   claim,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// RecordPremium фиксирует оплату премии. Сумма должна совпадать точно,
// повторная оплата отклоняется (не принимается молча).
func (p *InsurancePolicy) RecordPremium(amount int64) error {
	if !p.Active {
		return fmt.Errorf("%w: policy %s is deactivated", ErrInvalidState, p.ID)
	}
	if p.PremiumPaid {
		return fmt.Errorf("%w: premium for policy %s already paid", ErrInvalidState, p.ID)
	}
	if amount != p.PremiumAmount {
		return fmt.Errorf("%w: expected premium of exactly %d, got %d", ErrInvalidInput, p.PremiumAmount, amount)
	}
	p.PremiumPaid = true
	p.UpdatedAt = time.Now()
	return nil
}

// RecordClaim переводит полис в состояние Claimed.
// Подтверждение breach — ответственность реестра (оракул опрашивается там).
func (p *InsurancePolicy) RecordClaim() error {
	if !p.Active {
		return fmt.Errorf("%w: policy %s is deactivated", ErrInvalidState, p.ID)
	}
	if !p.PremiumPaid {
		return fmt.Errorf("%w: premium for policy %s is not paid", ErrInvalidState, p.ID)
	}
	if p.Claimed {
		return fmt.Errorf("%w: claim for policy %s already filed", ErrInvalidState, p.ID)
	}
	p.Claimed = true
	p.UpdatedAt = time.Now()
	return nil
}

// Approve — монотонный переход, обратной дороги нет
func (p *InsurancePolicy) Approve() error {
	if !p.Active {
		return fmt.Errorf("%w: policy %s is deactivated", ErrInvalidState, p.ID)
	}
	if !p.Claimed {
		return fmt.Errorf("%w: no claim filed on policy %s", ErrInvalidState, p.ID)
	}
	if p.ClaimApproved {
		return fmt.Errorf("%w: claim on policy %s already approved", ErrInvalidState, p.ID)
	}
	p.ClaimApproved = true
	p.UpdatedAt = time.Now()
	return nil
}

// Decline сбрасывает isClaimed, полис остается активным, премия — оплаченной,
// держатель может подать заявку снова. Допустим только до approve.
func (p *InsurancePolicy) Decline() error {
	if !p.Active {
		return fmt.Errorf("%w: policy %s is deactivated", ErrInvalidState, p.ID)
	}
	if !p.Claimed {
		return fmt.Errorf("%w: no claim filed on policy %s", ErrInvalidState, p.ID)
	}
	if p.ClaimApproved {
		return fmt.Errorf("%w: claim on policy %s already approved, decline is not permitted", ErrInvalidState, p.ID)
	}
	p.Claimed = false
	p.UpdatedAt = time.Now()
	return nil
}

// Payable сообщает, готов ли полис к выплате (шаг 1 протокола расчета)
func (p *InsurancePolicy) Payable() bool {
	return p.Active && p.Claimed && p.ClaimApproved
}

// Close закрывает полис ДО внешнего перевода средств (commit-before-transfer)
func (p *InsurancePolicy) Close() error {
	if !p.Payable() {
		return fmt.Errorf("%w: policy %s is not payable", ErrInvalidState, p.ID)
	}
	p.Active = false
	p.UpdatedAt = time.Now()
	return nil
}

// Reopen — компенсирующий откат закрытия при TransferFailed.
// Вызывается только из протокола расчета, пока держится settlement-guard.
func (p *InsurancePolicy) Reopen() {
	p.Active = true
	p.UpdatedAt = time.Now()
}

// Clone возвращает копию для read-проекций
func (p *InsurancePolicy) Clone() *InsurancePolicy {
	cp := *p
	return &cp
}

package models

import "time"

// Associate types form a closed enumeration; tariffs are keyed by them.
const (
	AssociateTypeStandard = "Associado"
	AssociateTypeEntity   = "Entidade"
	AssociateTypeOther    = "Outro"
)

// Invoice statuses. Only MarkInvoicePaid moves an invoice to paid.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
)

// Entity kinds accepted by the reading save and bulk reset operations.
const (
	EntityAssociate  = "associate"
	EntityHydrometer = "hydrometer"
)

type AdminUser struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Associate struct {
	ID             int       `json:"id"`
	SequentialID   int       `json:"sequential_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Contact        string    `json:"contact"`
	DocumentNumber string    `json:"document_number"`
	Type           string    `json:"type"`
	Region         string    `json:"region"`
	HydrometerID   *string   `json:"hydrometer_id"`
	IsActive       bool      `json:"is_active"`
	Observations   string    `json:"observations"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GeneralHydrometer is a shared upstream meter covering several associates.
// Identified by uuid; the display name is kept separate so legacy data that
// referenced hydrometers by free-text name can be mapped over.
type GeneralHydrometer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type BillingPeriod struct {
	ID               int       `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	ConsumptionLabel string    `json:"consumption_label"`
	ReadingDate      time.Time `json:"reading_date"`
	DueDate          time.Time `json:"due_date"`
	ConsumptionStart time.Time `json:"consumption_start"`
	ConsumptionEnd   time.Time `json:"consumption_end"`
	CreatedAt        time.Time `json:"created_at"`
}

type Reading struct {
	ID              int       `json:"id"`
	AssociateID     int       `json:"associate_id"`
	PeriodID        int       `json:"period_id"`
	ReadingDate     time.Time `json:"reading_date"`
	CurrentReading  float64   `json:"current_reading"`
	PreviousReading float64   `json:"previous_reading"`
	Consumption     float64   `json:"consumption"`
	IsReset         bool      `json:"is_reset"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type GeneralReading struct {
	ID              int       `json:"id"`
	HydrometerID    string    `json:"hydrometer_id"`
	PeriodID        int       `json:"period_id"`
	ReadingDate     time.Time `json:"reading_date"`
	CurrentReading  float64   `json:"current_reading"`
	PreviousReading float64   `json:"previous_reading"`
	Consumption     float64   `json:"consumption"`
	IsReset         bool      `json:"is_reset"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Invoice struct {
	ID              int        `json:"id"`
	AssociateID     int        `json:"associate_id"`
	PeriodID        int        `json:"period_id"`
	ReadingID       int        `json:"reading_id"`
	Consumption     float64    `json:"consumption"`
	AmountDue       float64    `json:"amount_due"`
	PreviousReading float64    `json:"previous_reading"`
	InvoiceDate     time.Time  `json:"invoice_date"`
	Status          string     `json:"status"`
	PaymentMethod   *string    `json:"payment_method"`
	PaymentDate     *time.Time `json:"payment_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TariffSchedule is the pricing rule for one associate type. The tariff
// engine receives it as an immutable snapshot; missing numeric fields are
// simply zero.
type TariffSchedule struct {
	ID              int       `json:"id"`
	AssociateType   string    `json:"associate_type"`
	FixedFee        float64   `json:"fixed_fee"`
	FreeConsumption float64   `json:"free_consumption"`
	StandardMeters  float64   `json:"standard_meters"`
	BasicTariff     float64   `json:"basic_tariff"`
	ExcessTariff    float64   `json:"excess_tariff"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BaselineResetLog rows are append-only; nothing updates or deletes them.
type BaselineResetLog struct {
	ID          int       `json:"id"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	PeriodID    int       `json:"period_id"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type LossRow struct {
	HydrometerID          string  `json:"hydrometer_id"`
	HydrometerName        string  `json:"hydrometer_name"`
	RegisteredConsumption float64 `json:"registered_consumption"`
	AssociateConsumption  float64 `json:"associate_consumption"`
	Loss                  float64 `json:"loss"`
}

type DashboardStats struct {
	TotalAssociates   int     `json:"total_associates"`
	ActiveAssociates  int     `json:"active_associates"`
	TotalHydrometers  int     `json:"total_hydrometers"`
	TotalPeriods      int     `json:"total_periods"`
	CurrentPeriodCode string  `json:"current_period_code"`
	PendingInvoices   int     `json:"pending_invoices"`
	PaidInvoices      int     `json:"paid_invoices"`
	PendingAmount     float64 `json:"pending_amount"`
	PaidAmount        float64 `json:"paid_amount"`
	PeriodConsumption float64 `json:"period_consumption"`
}

type PeriodConsumption struct {
	PeriodID    int     `json:"period_id"`
	PeriodCode  string  `json:"period_code"`
	Consumption float64 `json:"consumption"`
	Billed      float64 `json:"billed"`
}

package models

// CommissionStatus константы статусов комиссии
const (
	CommissionStatusPending    = "pending"
	CommissionStatusInProgress = "in_progress"
	CommissionStatusCompleted  = "completed"
	CommissionStatusCancelled  = "cancelled"
)

// PaymentType константы типов оплаты комиссии
const (
	PaymentTypeFull      = "full"
	PaymentTypeDeposit   = "deposit"
	PaymentTypeMilestone = "milestone"
	PaymentTypeFinal     = "final"
	PaymentTypeTip       = "tip"
)

// PaymentStatus константы статусов оплаты на уровне комиссии
const (
	PaymentStatusPending     = "pending"
	PaymentStatusDepositPaid = "deposit_paid"
	PaymentStatusFullyPaid   = "fully_paid"
)

// EscrowStatus константы статусов escrow
const (
	EscrowStatusNone     = "none"
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// MilestonePaymentStatus константы статусов оплаты этапа
const (
	MilestoneUnpaid = "unpaid"
	MilestonePaid   = "paid"
)

// TransactionStatus константы статусов платёжной транзакции
const (
	TransactionStatusPending   = "pending"
	TransactionStatusSucceeded = "succeeded"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
)

// ProviderName константы платёжных провайдеров
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// ApprovalStatus константы статусов приёмки этапа
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// ReviewStatus константы статусов отзывов
const (
	ReviewStatusPending   = "pending"
	ReviewStatusSubmitted = "submitted"
)

// ValidCommissionStatuses список валидных статусов комиссий
var ValidCommissionStatuses = map[string]struct{}{
	CommissionStatusPending:    {},
	CommissionStatusInProgress: {},
	CommissionStatusCompleted:  {},
	CommissionStatusCancelled:  {},
}

// ValidPaymentTypes список валидных типов оплаты
var ValidPaymentTypes = map[string]struct{}{
	PaymentTypeFull:      {},
	PaymentTypeDeposit:   {},
	PaymentTypeMilestone: {},
	PaymentTypeFinal:     {},
	PaymentTypeTip:       {},
}

package payment

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Лимит самого тесного из поддерживаемых полей корреляции (custom_id у PayPal).
const maxCorrelationLen = 127

// Correlation — компактный токен, связывающий заказ провайдера с комиссией.
// Сериализуется в короткий JSON, чтобы уложиться в 127 байт.
type Correlation struct {
	CommissionID uuid.UUID  `json:"c"`
	PaymentType  string     `json:"p"`
	MilestoneID  *uuid.UUID `json:"m,omitempty"`
}

// Encode сериализует токен и проверяет лимит длины.
func (c Correlation) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("payment: encode correlation %w", err)
	}
	if len(data) > maxCorrelationLen {
		return "", fmt.Errorf("payment: токен корреляции длиннее %d байт", maxCorrelationLen)
	}
	return string(data), nil
}

// DecodeCorrelation разбирает токен корреляции из вебхука. Повреждённый токен
// не фатален: вызывающий откатывается к correlation_metadata локальной записи.
func DecodeCorrelation(raw string) (*Correlation, error) {
	if raw == "" {
		return nil, fmt.Errorf("payment: пустой токен корреляции")
	}
	var c Correlation
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("payment: decode correlation %w", err)
	}
	if c.CommissionID == uuid.Nil {
		return nil, fmt.Errorf("payment: токен корреляции без комиссии")
	}
	return &c, nil
}

package payment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

func TestCorrelation_EncodeDecode(t *testing.T) {
	commissionID := uuid.New()
	milestoneID := uuid.New()

	token, err := Correlation{
		CommissionID: commissionID,
		PaymentType:  models.PaymentTypeMilestone,
		MilestoneID:  &milestoneID,
	}.Encode()
	assert.NoError(t, err)
	// Худший случай (оба UUID и тип) обязан влезать в custom_id.
	assert.LessOrEqual(t, len(token), maxCorrelationLen)

	decoded, err := DecodeCorrelation(token)
	assert.NoError(t, err)
	assert.Equal(t, commissionID, decoded.CommissionID)
	assert.Equal(t, models.PaymentTypeMilestone, decoded.PaymentType)
	assert.Equal(t, milestoneID, *decoded.MilestoneID)
}

func TestCorrelation_EncodeWithoutMilestone(t *testing.T) {
	token, err := Correlation{
		CommissionID: uuid.New(),
		PaymentType:  models.PaymentTypeFull,
	}.Encode()
	assert.NoError(t, err)

	decoded, err := DecodeCorrelation(token)
	assert.NoError(t, err)
	assert.Nil(t, decoded.MilestoneID)
}

func TestDecodeCorrelation_Invalid(t *testing.T) {
	_, err := DecodeCorrelation("")
	assert.Error(t, err)

	_, err = DecodeCorrelation("не json")
	assert.Error(t, err)

	// Синтаксически валидный токен без комиссии бесполезен для сверки.
	_, err = DecodeCorrelation(`{"p":"full"}`)
	assert.Error(t, err)
}

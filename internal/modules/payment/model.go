// README: Append-only money movement records per tow job.
package payment

import (
	"errors"
	"time"

	"towline/internal/types"
)

var (
	ErrPayeeNotConfigured = errors.New("driver has no payee account configured")
	ErrGateway            = errors.New("payment gateway failure")
)

type TransactionType string

const (
	TxCharge      TransactionType = "charge"
	TxRefund      TransactionType = "refund"
	TxPayout      TransactionType = "payout"
	TxPlatformFee TransactionType = "platform_fee"
)

// Transaction is one immutable ledger row. Rows are only ever appended. Note
// carries context for reconciliation, such as the cancel reason on a refund.
type Transaction struct {
	ID         types.ID        `json:"id"`
	JobID      types.ID        `json:"job_id"`
	Type       TransactionType `json:"type"`
	Amount     types.Money     `json:"amount"`
	GatewayRef string          `json:"gateway_ref,omitempty"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

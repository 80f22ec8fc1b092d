package model

import (
	"fmt"
	"time"
)

type TxDirection string

const (
	TxDirectionCredit TxDirection = "CREDIT"
	TxDirectionDebit  TxDirection = "DEBIT"
)

type TxType string

const (
	TxTypeDeposit          TxType = "DEPOSIT"
	TxTypeWithdrawal       TxType = "WITHDRAWAL"
	TxTypeMilestonePayment TxType = "MILESTONE_PAYMENT"
	TxTypeDisbursement     TxType = "DISBURSEMENT"
	TxTypeAllocation       TxType = "ALLOCATION"
	TxTypeSystemFee        TxType = "SYSTEM_FEE"
	TxTypeRefund           TxType = "REFUND"
)

type RefType string

const (
	RefTypeMilestone    RefType = "MILESTONE"
	RefTypeDisbursement RefType = "DISBURSEMENT"
	RefTypeAllocation   RefType = "ALLOCATION_SET"
)

// Wallet is a balance row. The balance is only ever moved together with a
// ledger append, inside the same storage transaction.
type Wallet struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerTransaction is one immutable wallet balance change. Failed attempts
// never produce a row, so SUCCESS is the only status.
type LedgerTransaction struct {
	ID           int64       `json:"id"`
	WalletID     string      `json:"wallet_id"`
	Amount       int64       `json:"amount"`
	Direction    TxDirection `json:"direction"`
	Type         TxType      `json:"type"`
	BalanceAfter int64       `json:"balance_after"`
	RefID        int64       `json:"ref_id"`
	RefType      RefType     `json:"ref_type"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

const TxStatusSuccess = "SUCCESS"

// Well-known wallet id scheme.
const PlatformWalletID = "platform"

func EscrowWalletID(milestoneID int64) string {
	return fmt.Sprintf("escrow:%d", milestoneID)
}

func UserWalletID(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

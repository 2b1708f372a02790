package enums

// TransactionStatus tracks a single provider payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusProcessing        TransactionStatus = "processing"
	TransactionStatusAuthorized        TransactionStatus = "authorized"
	TransactionStatusCaptured          TransactionStatus = "captured"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
)

var transactionStatuses = newDomain("transaction status",
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusAuthorized,
	TransactionStatusCaptured,
	TransactionStatusFailed,
	TransactionStatusRefunded,
	TransactionStatusPartiallyRefunded,
)

func (s TransactionStatus) IsValid() bool { return transactionStatuses.contains(s) }

// IsSettled reports whether money has moved for the attempt (captured or any refund state).
func (s TransactionStatus) IsSettled() bool {
	switch s {
	case TransactionStatusCaptured, TransactionStatusRefunded, TransactionStatusPartiallyRefunded:
		return true
	}
	return false
}

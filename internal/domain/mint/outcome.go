// internal/domain/mint/outcome.go
package mint

// OutcomeKind はユーザー向けに返す結果の種類です（固定集合）。
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeSoldOut           OutcomeKind = "sold_out"
	OutcomeSaleNotStarted    OutcomeKind = "sale_not_started"
	OutcomeInsufficientFunds OutcomeKind = "insufficient_funds"
	OutcomeTimeout           OutcomeKind = "timeout"
	OutcomeGenericFailure    OutcomeKind = "generic_failure"
)

// メッセージテンプレート
const (
	MessageSuccess           = "Congratulations! Mint succeeded!"
	MessageSoldOut           = "SOLD OUT!"
	MessageSaleNotStarted    = "Minting period hasn't started yet."
	MessageInsufficientFunds = "Insufficient funds to mint. Please fund your wallet."
	MessageTimeout           = "Transaction Timeout! Please try again."
	MessageGenericFailure    = "Minting failed! Please try again!"

	// GenericFailure の派生メッセージ（Timeout / SoldOut とは必ず区別できる文言にする）
	MessageUserRejected   = "Mint cancelled: the wallet declined to sign the transaction."
	MessageIdentityDenied = "Identity verification failed. Complete the verification and try again."
	MessageSaleEnded      = "Minting period has ended."
)

// Outcome は 1 回の試行につき必ず 1 つだけ生成される分類結果です。
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
}

// NewOutcome はテンプレート文言付きの Outcome を返します。
func NewOutcome(kind OutcomeKind) Outcome {
	return Outcome{Kind: kind, Message: templateFor(kind)}
}

// WithMessage は同じ Kind のまま文言だけ差し替えます。
func (o Outcome) WithMessage(msg string) Outcome {
	o.Message = msg
	return o
}

// Succeeded は Success かどうかを返します。
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

func templateFor(kind OutcomeKind) string {
	switch kind {
	case OutcomeSuccess:
		return MessageSuccess
	case OutcomeSoldOut:
		return MessageSoldOut
	case OutcomeSaleNotStarted:
		return MessageSaleNotStarted
	case OutcomeInsufficientFunds:
		return MessageInsufficientFunds
	case OutcomeTimeout:
		return MessageTimeout
	default:
		return MessageGenericFailure
	}
}

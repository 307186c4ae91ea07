// internal/application/mint/classifier.go
package mint

import (
	"errors"
	"strings"

	mintdom "candymint/internal/domain/mint"
)

// ============================================================
// OutcomeClassifier
// ============================================================
//
// 低レベルの失敗シグナルをユーザー向け Outcome に落とし込む唯一のマッピング表。
// 文字列部分一致はここ以外に散らさないこと。
// ルールの優先順位: エラーコード > メッセージ部分一致。

// Stage はどのサブステップで結果が確定したかを表します。
type Stage string

const (
	StageRead     Stage = "read"
	StageIdentity Stage = "identity"
	StageBuild    Stage = "build"
	StageSubmit   Stage = "submit"
	StageWatch    Stage = "watch"
)

// Result は Classify への入力です。
// Watch は送信に成功して監視まで進んだ場合のみ non-nil。
type Result struct {
	Stage         Stage
	TransactionID string
	Watch         *WatchResult
	Err           error
}

// Candy Machine v2 のカスタムエラーコード
const (
	CodeCandyMachineEmpty   uint32 = 311 // 0x137
	CodeCandyMachineNotLive uint32 = 312 // 0x138

	// System Program (ResultWithNegativeLamports) / SPL Token (InsufficientFunds) の Custom(1)。
	// Candy Machine のコードは 300 番台なので衝突しない。
	CodeInsufficientFunds uint32 = 1
)

var codeRules = map[uint32]mintdom.OutcomeKind{
	CodeCandyMachineEmpty:   mintdom.OutcomeSoldOut,
	CodeCandyMachineNotLive: mintdom.OutcomeSaleNotStarted,
	CodeInsufficientFunds:   mintdom.OutcomeInsufficientFunds,
}

type messageRule struct {
	contains string
	kind     mintdom.OutcomeKind
}

// 上流プログラムのエラー報告が一貫していないため、メッセージ側にもコードが埋まってくる。
// 比較は小文字化して行う。
var messageRules = []messageRule{
	{contains: "0x137", kind: mintdom.OutcomeSoldOut},
	{contains: "0x138", kind: mintdom.OutcomeSaleNotStarted},
	{contains: "0x135", kind: mintdom.OutcomeInsufficientFunds},
	{contains: "insufficient funds", kind: mintdom.OutcomeInsufficientFunds},
	{contains: "insufficient lamports", kind: mintdom.OutcomeInsufficientFunds},
	{contains: "no record of a prior credit", kind: mintdom.OutcomeInsufficientFunds},
	{contains: "insufficientfunds", kind: mintdom.OutcomeInsufficientFunds},
}

// Classify は純粋関数です。同じ入力には必ず同じ Outcome を返します。
func Classify(r Result) mintdom.Outcome {
	if r.Err == nil && r.Watch != nil {
		switch r.Watch.State {
		case WatchConfirmed:
			return mintdom.NewOutcome(mintdom.OutcomeSuccess)
		case WatchTimedOut:
			return mintdom.NewOutcome(mintdom.OutcomeTimeout)
		case WatchErroredOnChain:
			return classifyChainError(r.Watch.Err)
		}
		// Watching のまま渡されることはないが、不明は Timeout に寄せる
		return mintdom.NewOutcome(mintdom.OutcomeTimeout)
	}

	if r.Err == nil {
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
	}

	if ce, ok := mintdom.AsChainError(r.Err); ok {
		return classifyChainError(ce)
	}

	switch {
	case errors.Is(r.Err, mintdom.ErrUserRejected):
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure).WithMessage(mintdom.MessageUserRejected)
	case errors.Is(r.Err, mintdom.ErrIdentityDenied):
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure).WithMessage(mintdom.MessageIdentityDenied)
	case errors.Is(r.Err, mintdom.ErrEmptyTransactionID):
		// transactionId が無い = 落ちたトランザクションと区別できない
		return mintdom.NewOutcome(mintdom.OutcomeTimeout)
	case errors.Is(r.Err, mintdom.ErrRemoteUnavailable):
		if r.Stage == StageSubmit && r.TransactionID == "" {
			return mintdom.NewOutcome(mintdom.OutcomeTimeout)
		}
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
	}

	var se *mintdom.SubmitError
	if errors.As(r.Err, &se) && se != nil {
		if o, ok := classifyCode(se.Program); ok {
			return o
		}
		return classifyMessage(se.Message + "\n" + strings.Join(se.Logs, "\n"))
	}

	return classifyMessage(r.Err.Error())
}

func classifyChainError(ce *mintdom.ChainError) mintdom.Outcome {
	if ce == nil {
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
	}
	if o, ok := classifyCode(ce); ok {
		return o
	}
	return classifyMessage(ce.Raw)
}

func classifyCode(ce *mintdom.ChainError) (mintdom.Outcome, bool) {
	if ce == nil || !ce.HasCode {
		return mintdom.Outcome{}, false
	}
	kind, ok := codeRules[ce.Code]
	if !ok {
		return mintdom.Outcome{}, false
	}
	return mintdom.NewOutcome(kind), true
}

func classifyMessage(msg string) mintdom.Outcome {
	m := strings.ToLower(msg)
	for _, rule := range messageRules {
		if strings.Contains(m, rule.contains) {
			return mintdom.NewOutcome(rule.kind)
		}
	}
	return mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
}

// StatusFor は Outcome から Attempt の終端状態を決めます。
func StatusFor(o mintdom.Outcome) mintdom.Status {
	if o.Kind == mintdom.OutcomeSuccess {
		return mintdom.StatusConfirmed
	}
	if o.Kind == mintdom.OutcomeTimeout {
		return mintdom.StatusTimedOut
	}
	return mintdom.StatusFailed
}

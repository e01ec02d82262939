package classify

import (
	"strings"

	"ledgerforge/internal/models"
)

// BuyClassifier matches a 1-in/1-out trade that paid with fiat and
// received crypto: a fiat outflow leg funding a crypto inflow leg.
type BuyClassifier struct{}

func (BuyClassifier) OperationType() models.OperationType { return models.OpBuy }
func (BuyClassifier) Match(in Input) bool {
	return in.InflowCount == 1 && in.OutflowCount == 1 && !in.SameAssetBothSides && !in.IsSelfTransfer &&
		in.OutflowIsFiat && !in.InflowIsFiat
}

// SellClassifier matches a 1-in/1-out trade that disposed of crypto for
// fiat: a crypto outflow leg settling into a fiat inflow leg.
type SellClassifier struct{}

func (SellClassifier) OperationType() models.OperationType { return models.OpSell }
func (SellClassifier) Match(in Input) bool {
	return in.InflowCount == 1 && in.OutflowCount == 1 && !in.SameAssetBothSides && !in.IsSelfTransfer &&
		in.InflowIsFiat && !in.OutflowIsFiat
}

// SwapClassifier matches a transaction with exactly one inflow and one
// outflow of differing, non-fiat assets - a crypto/crypto trade. Buy
// and sell are checked first, so this only ever sees legs where
// neither side is fiat.
type SwapClassifier struct{}

func (SwapClassifier) OperationType() models.OperationType { return models.OpSwap }
func (SwapClassifier) Match(in Input) bool {
	return in.InflowCount == 1 && in.OutflowCount == 1 && !in.SameAssetBothSides && !in.IsSelfTransfer &&
		!in.InflowIsFiat && !in.OutflowIsFiat
}

// SelfTransferClassifier matches a same-asset move between the user's
// own accounts (no ownership change, no gain/loss realized).
type SelfTransferClassifier struct{}

func (SelfTransferClassifier) OperationType() models.OperationType { return models.OpTransfer }
func (SelfTransferClassifier) Match(in Input) bool {
	return in.IsSelfTransfer
}

// StakeClassifier matches provider-hinted staking/delegation events.
type StakeClassifier struct{}

func (StakeClassifier) OperationType() models.OperationType { return models.OpStake }
func (StakeClassifier) Match(in Input) bool {
	hint := strings.ToLower(in.ProviderEventHint)
	return strings.Contains(hint, "stake") || strings.Contains(hint, "delegat")
}

// RewardClassifier matches provider-hinted staking/interest payouts:
// an inflow with no corresponding outflow and a reward-shaped hint.
type RewardClassifier struct{}

func (RewardClassifier) OperationType() models.OperationType { return models.OpReward }
func (RewardClassifier) Match(in Input) bool {
	hint := strings.ToLower(in.ProviderEventHint)
	return in.InflowCount > 0 && in.OutflowCount == 0 &&
		(strings.Contains(hint, "reward") || strings.Contains(hint, "interest") || strings.Contains(hint, "payout"))
}

// DepositClassifier matches a pure inflow from an external source.
type DepositClassifier struct{}

func (DepositClassifier) OperationType() models.OperationType { return models.OpDeposit }
func (DepositClassifier) Match(in Input) bool {
	return in.InflowCount > 0 && in.OutflowCount == 0
}

// WithdrawalClassifier matches a pure outflow to an external destination.
type WithdrawalClassifier struct{}

func (WithdrawalClassifier) OperationType() models.OperationType { return models.OpWithdrawal }
func (WithdrawalClassifier) Match(in Input) bool {
	return in.OutflowCount > 0 && in.InflowCount == 0
}

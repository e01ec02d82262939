// Package classify assigns an Operation to a built canonical
// transaction. Classifiers are tried in registration order; the first
// match wins, mirroring the condition-matcher registry this module's
// webhook layer used to pick a handler for an inbound blockchain event.
package classify

import "ledgerforge/internal/models"

// Input is the classification-relevant projection of a transaction
// being built, computed by the Process Service before movements and
// fees are finalized.
type Input struct {
	SourceType      models.SourceType
	InflowCount     int
	OutflowCount    int
	SameAssetBothSides bool
	IsSelfTransfer  bool
	// InflowIsFiat/OutflowIsFiat report whether a 1-in/1-out
	// transaction's single leg is a fiat AssetID, distinguishing a buy
	// (fiat out, crypto in) and a sell (crypto out, fiat in) from a
	// crypto/crypto swap. Meaningless outside the 1-in/1-out case.
	InflowIsFiat  bool
	OutflowIsFiat bool
	ProviderEventHint string // raw provider-reported type/category, best-effort
}

// Classifier matches a classification Input against one Operation.
type Classifier interface {
	OperationType() models.OperationType
	Match(in Input) bool
}

// Registry holds classifiers in priority order.
type Registry struct {
	classifiers []Classifier
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(c Classifier) {
	r.classifiers = append(r.classifiers, c)
}

// Classify returns the Operation for the first matching classifier, or
// a category/type-unknown Operation with an ambiguity Note if none match.
func (r *Registry) Classify(in Input) (models.Operation, *models.Note) {
	for _, c := range r.classifiers {
		if c.Match(in) {
			return operationFor(c.OperationType()), nil
		}
	}
	return models.Operation{Category: models.CategoryTransfer, Type: models.OpTransfer},
		&models.Note{
			Type:     "ambiguous_classification",
			Severity: models.SeverityWarning,
			Message:  "no classifier matched; defaulted to transfer",
		}
}

func operationFor(t models.OperationType) models.Operation {
	switch t {
	case models.OpBuy, models.OpSell, models.OpSwap:
		return models.Operation{Category: models.CategoryTrade, Type: t}
	case models.OpDeposit, models.OpWithdrawal, models.OpTransfer:
		return models.Operation{Category: models.CategoryTransfer, Type: t}
	case models.OpStake, models.OpUnstake, models.OpReward:
		return models.Operation{Category: models.CategoryStaking, Type: t}
	case models.OpFee:
		return models.Operation{Category: models.CategoryFee, Type: t}
	case models.OpVote, models.OpProposal:
		return models.Operation{Category: models.CategoryGovernance, Type: t}
	default:
		return models.Operation{Category: models.CategoryDefi, Type: t}
	}
}

// RegisterAll registers every built-in classifier in priority order:
// the most specific conditions first, the catch-all transfer/deposit
// rules last.
func RegisterAll(r *Registry) {
	r.Register(&BuyClassifier{})
	r.Register(&SellClassifier{})
	r.Register(&SwapClassifier{})
	r.Register(&SelfTransferClassifier{})
	r.Register(&StakeClassifier{})
	r.Register(&RewardClassifier{})
	r.Register(&DepositClassifier{})
	r.Register(&WithdrawalClassifier{})
}

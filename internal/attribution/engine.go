// Package attribution assigns a transfer to the dApp that most likely
// caused it. Matchers run in a fixed priority order and the first match
// wins; reordering them changes every attributed result and is a breaking
// change.
package attribution

import (
	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
)

// Signals are the optional observations available for one transfer.
type Signals struct {
	TargetContract string
	Relayer        string
	PrecedingTxTo  string
	WalletLabel    string
}

// Lookup resolves addresses and labels to dApp ids.
type Lookup interface {
	DappByContract(address string) (string, bool)
	DappByRelayer(address string) (string, bool)
	DappByWalletLabel(label string) (string, bool)
}

// Matcher inspects the signals and returns a match or ok=false.
type Matcher interface {
	Name() model.AttributionMethod
	Match(s Signals) (model.Attribution, bool)
}

type Engine struct {
	matchers []Matcher
}

// NewEngine returns the standard cascade:
// target contract 95, relayer 85, preceding tx 65, wallet label 50.
func NewEngine(lookup Lookup) *Engine {
	return NewEngineWithMatchers(
		targetContractMatcher{lookup},
		relayerMatcher{lookup},
		precedingTxMatcher{lookup},
		walletLabelMatcher{lookup},
	)
}

// NewEngineWithMatchers evaluates matchers in the given order.
func NewEngineWithMatchers(matchers ...Matcher) *Engine {
	return &Engine{matchers: matchers}
}

// Attribute returns the first match, or an UNKNOWN attribution with
// confidence 0. Matchers after the first match are not evaluated.
func (e *Engine) Attribute(s Signals) model.Attribution {
	for _, m := range e.matchers {
		if a, ok := m.Match(s); ok {
			return a
		}
	}
	return model.Attribution{Confidence: model.ConfidenceUnknown, Method: model.MethodUnknown}
}

func matched(dappID string, confidence int, method model.AttributionMethod, value string) model.Attribution {
	id := dappID
	return model.Attribution{
		DappID:     &id,
		Confidence: confidence,
		Method:     method,
		Signals:    []string{string(method) + ":" + value},
	}
}

type targetContractMatcher struct{ lookup Lookup }

func (targetContractMatcher) Name() model.AttributionMethod { return model.MethodTargetContract }

func (m targetContractMatcher) Match(s Signals) (model.Attribution, bool) {
	id, ok := m.lookup.DappByContract(s.TargetContract)
	if !ok {
		return model.Attribution{}, false
	}
	return matched(id, model.ConfidenceTargetContract, model.MethodTargetContract, s.TargetContract), true
}

type relayerMatcher struct{ lookup Lookup }

func (relayerMatcher) Name() model.AttributionMethod { return model.MethodRelayer }

func (m relayerMatcher) Match(s Signals) (model.Attribution, bool) {
	id, ok := m.lookup.DappByRelayer(s.Relayer)
	if !ok {
		return model.Attribution{}, false
	}
	return matched(id, model.ConfidenceRelayer, model.MethodRelayer, s.Relayer), true
}

type precedingTxMatcher struct{ lookup Lookup }

func (precedingTxMatcher) Name() model.AttributionMethod { return model.MethodPrecedingTx }

func (m precedingTxMatcher) Match(s Signals) (model.Attribution, bool) {
	id, ok := m.lookup.DappByContract(s.PrecedingTxTo)
	if !ok {
		return model.Attribution{}, false
	}
	return matched(id, model.ConfidencePrecedingTx, model.MethodPrecedingTx, s.PrecedingTxTo), true
}

type walletLabelMatcher struct{ lookup Lookup }

func (walletLabelMatcher) Name() model.AttributionMethod { return model.MethodWalletLabel }

func (m walletLabelMatcher) Match(s Signals) (model.Attribution, bool) {
	id, ok := m.lookup.DappByWalletLabel(s.WalletLabel)
	if !ok {
		return model.Attribution{}, false
	}
	return matched(id, model.ConfidenceWalletLabel, model.MethodWalletLabel, s.WalletLabel), true
}

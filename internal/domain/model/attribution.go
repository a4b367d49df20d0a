package model

// AttributionMethod names the signal that produced an attribution.
type AttributionMethod string

const (
	MethodTargetContract AttributionMethod = "TARGET_CONTRACT"
	MethodRelayer        AttributionMethod = "RELAYER"
	MethodPrecedingTx    AttributionMethod = "PRECEDING_TX"
	MethodWalletLabel    AttributionMethod = "WALLET_LABEL"
	MethodTwinContract   AttributionMethod = "TWIN_CONTRACT"
	MethodUnknown        AttributionMethod = "UNKNOWN"
)

// Confidence scores per method.
const (
	ConfidenceTargetContract = 95
	ConfidenceRelayer        = 85
	ConfidencePrecedingTx    = 65
	ConfidenceWalletLabel    = 50
	ConfidenceUnknown        = 0
)

// Attribution is the result of running the attribution engine for one
// transfer.
type Attribution struct {
	DappID     *string           `json:"dapp_id"`
	Confidence int               `json:"confidence"`
	Method     AttributionMethod `json:"method"`
	Signals    []string          `json:"signals,omitempty"`
}

// Apply copies the attribution fields onto t.
func (a Attribution) Apply(t *Transfer) {
	t.DappID = a.DappID
	t.AttributionConfidence = a.Confidence
	t.AttributionMethod = a.Method
	t.AttributionSignals = a.Signals
}

// Dapp is an application that owns zero or more bridge-adjacent contracts.
type Dapp struct {
	ID        string         `db:"id" yaml:"id"`
	Name      string         `db:"name" yaml:"name"`
	Category  string         `db:"category" yaml:"category"`
	Website   string         `db:"website" yaml:"website,omitempty"`
	Contracts []DappContract `db:"-" yaml:"contracts"`
}

// DappContract binds an address on a chain to a dApp. An address belongs to
// at most one dApp.
type DappContract struct {
	DappID  string `db:"dapp_id" yaml:"-"`
	Chain   Chain  `db:"chain" yaml:"chain"`
	Address string `db:"address" yaml:"address"`
	Role    string `db:"role" yaml:"role"`
}

package model

import (
	"fmt"
	"strings"
)

// Chain identifies one side of the bridge. Values match the persisted
// enumeration.
type Chain string

const (
	// ChainBase is the contract-based chain (EVM).
	ChainBase Chain = "BASE"
	// ChainSolana is the ledger-based chain.
	ChainSolana Chain = "SOLANA"
)

func (c Chain) String() string {
	return string(c)
}

// ParseChain accepts either case.
func ParseChain(s string) (Chain, error) {
	switch Chain(strings.ToUpper(strings.TrimSpace(s))) {
	case ChainBase:
		return ChainBase, nil
	case ChainSolana:
		return ChainSolana, nil
	default:
		return "", fmt.Errorf("unknown chain %q", s)
	}
}

type Direction string

const (
	DirectionBaseToSolana Direction = "BASE_TO_SOLANA"
	DirectionSolanaToBase Direction = "SOLANA_TO_BASE"

	// DirectionContractToLedger and DirectionLedgerToContract name the same
	// values by chain role.
	DirectionContractToLedger = DirectionBaseToSolana
	DirectionLedgerToContract = DirectionSolanaToBase
)

func (d Direction) String() string {
	return string(d)
}

type TransferStatus string

const (
	StatusPending   TransferStatus = "PENDING"
	StatusCompleted TransferStatus = "COMPLETED"
	StatusFailed    TransferStatus = "FAILED"
)

// EventKind distinguishes the two bridge events emitted on either chain.
type EventKind string

const (
	// KindInitialized is the outgoing side of a bridge transfer.
	KindInitialized EventKind = "INITIALIZED"
	// KindFinalized is the incoming side of a bridge transfer.
	KindFinalized EventKind = "FINALIZED"
)

func (k EventKind) String() string {
	return string(k)
}

type lifecycleKey struct {
	chain Chain
	kind  EventKind
}

type lifecycle struct {
	direction Direction
	status    TransferStatus
}

var lifecycleTable = map[lifecycleKey]lifecycle{
	{ChainBase, KindInitialized}:   {DirectionBaseToSolana, StatusPending},
	{ChainBase, KindFinalized}:     {DirectionSolanaToBase, StatusCompleted},
	{ChainSolana, KindInitialized}: {DirectionSolanaToBase, StatusPending},
	{ChainSolana, KindFinalized}:   {DirectionBaseToSolana, StatusCompleted},
}

// Lifecycle returns the direction and status of a transfer that chain
// emitted as an event of the given kind. Nothing else derives either value.
func Lifecycle(chain Chain, kind EventKind) (Direction, TransferStatus, error) {
	l, ok := lifecycleTable[lifecycleKey{chain, kind}]
	if !ok {
		return "", "", fmt.Errorf("no lifecycle for chain=%s kind=%s", chain, kind)
	}
	return l.direction, l.status, nil
}

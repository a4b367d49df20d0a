package tokenmeta

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	baserpc "github.com/emperorhan/bridgescope-indexer/internal/chain/base/rpc"
	"github.com/emperorhan/bridgescope-indexer/internal/retry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const erc20ABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// fallbackSymbol is used when symbol() returns an empty string.
const fallbackSymbol = "TOKEN"

var parsedERC20 = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// EVMReader reads ERC-20 metadata through eth_call.
type EVMReader struct {
	client baserpc.RPCClient
	policy retry.Policy
}

var (
	_ Reader     = (*EVMReader)(nil)
	_ NameReader = (*EVMReader)(nil)
)

func NewEVMReader(client baserpc.RPCClient) *EVMReader {
	return &EVMReader{client: client, policy: retry.DefaultPolicy}
}

// Metadata reads symbol() and decimals() concurrently. Either failing fails
// the whole read.
func (r *EVMReader) Metadata(ctx context.Context, address string) (*Metadata, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("not an EVM address: %q", address)
	}
	var (
		symbol   string
		decimals uint8
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.callString(gctx, address, "symbol")
		symbol = s
		return err
	})
	g.Go(func() error {
		out, err := r.call(gctx, address, "decimals")
		if err != nil {
			return err
		}
		vals, err := parsedERC20.Unpack("decimals", out)
		if err != nil {
			return fmt.Errorf("decode decimals: %w", err)
		}
		d, ok := vals[0].(uint8)
		if !ok {
			return fmt.Errorf("decode decimals: unexpected %T", vals[0])
		}
		decimals = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(symbol) == "" {
		symbol = fallbackSymbol
	}
	return &Metadata{Symbol: symbol, Decimals: int(decimals)}, nil
}

// DisplayName tries name() then symbol().
func (r *EVMReader) DisplayName(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("not an EVM address: %q", address)
	}
	var lastErr error
	for _, method := range []string{"name", "symbol"} {
		s, err := r.callString(ctx, address, method)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty name and symbol")
	}
	return "", lastErr
}

func (r *EVMReader) call(ctx context.Context, address, method string) ([]byte, error) {
	data, err := parsedERC20.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.HexToAddress(address).Hex()
	var out []byte
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		res, err := r.client.EthCall(ctx, to, data)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s(): empty return data", method)
	}
	return out, nil
}

// callString decodes a string return value. Some older tokens return
// bytes32 instead; those are decoded by trimming trailing zero bytes.
func (r *EVMReader) callString(ctx context.Context, address, method string) (string, error) {
	out, err := r.call(ctx, address, method)
	if err != nil {
		return "", err
	}
	vals, err := parsedERC20.Unpack(method, out)
	if err == nil {
		if s, ok := vals[0].(string); ok {
			return s, nil
		}
	}
	if len(out) == 32 {
		return string(bytes.TrimRight(out, "\x00")), nil
	}
	return "", fmt.Errorf("decode %s: %w", method, err)
}

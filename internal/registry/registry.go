// Package registry holds the dApp/contract bindings, known relayers,
// wallet-label markers and the known-token pricing map. All address lookups
// are exact matches, case-insensitive.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"gopkg.in/yaml.v3"
)

//go:embed default_registry.yaml
var defaultRegistry []byte

// File is the on-disk registry format.
type File struct {
	Dapps        []model.Dapp  `yaml:"dapps"`
	Relayers     []Relayer     `yaml:"relayers"`
	WalletLabels []WalletLabel `yaml:"wallet_labels"`
	KnownTokens  []KnownToken  `yaml:"known_tokens"`
}

type Relayer struct {
	Address string `yaml:"address"`
	DappID  string `yaml:"dapp"`
}

// WalletLabel attributes a wallet whose label contains Marker.
type WalletLabel struct {
	Marker string `yaml:"marker"`
	DappID string `yaml:"dapp"`
}

// KnownToken maps a token address to its external pricing identifier.
type KnownToken struct {
	Address   string `yaml:"address"`
	PricingID string `yaml:"pricing_id"`
	Symbol    string `yaml:"symbol"`
}

type Registry struct {
	mu          sync.RWMutex
	dapps       map[string]model.Dapp
	contracts   map[string]string
	relayers    map[string]string
	labels      []WalletLabel
	knownTokens map[string]KnownToken
}

// Load reads the registry at path, or the built-in registry when path is
// empty.
func Load(path string) (*Registry, error) {
	raw := defaultRegistry
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry %s: %w", path, err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return New(f)
}

func New(f File) (*Registry, error) {
	r := &Registry{
		dapps:       make(map[string]model.Dapp),
		contracts:   make(map[string]string),
		relayers:    make(map[string]string),
		knownTokens: make(map[string]KnownToken),
	}
	for _, d := range f.Dapps {
		if err := r.addDappLocked(d); err != nil {
			return nil, err
		}
	}
	for _, rl := range f.Relayers {
		if rl.Address == "" || rl.DappID == "" {
			return nil, fmt.Errorf("relayer entry requires address and dapp")
		}
		r.relayers[key(rl.Address)] = rl.DappID
	}
	for _, wl := range f.WalletLabels {
		if wl.Marker == "" || wl.DappID == "" {
			return nil, fmt.Errorf("wallet label entry requires marker and dapp")
		}
		r.labels = append(r.labels, WalletLabel{Marker: strings.ToLower(wl.Marker), DappID: wl.DappID})
	}
	for _, kt := range f.KnownTokens {
		if kt.Address == "" || kt.PricingID == "" {
			return nil, fmt.Errorf("known token entry requires address and pricing_id")
		}
		r.knownTokens[key(kt.Address)] = kt
	}
	return r, nil
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (r *Registry) addDappLocked(d model.Dapp) error {
	if d.ID == "" {
		return fmt.Errorf("dapp entry requires id")
	}
	for i, c := range d.Contracts {
		k := key(c.Address)
		if owner, ok := r.contracts[k]; ok && owner != d.ID {
			return fmt.Errorf("contract %s bound to both %s and %s", c.Address, owner, d.ID)
		}
		r.contracts[k] = d.ID
		d.Contracts[i].DappID = d.ID
	}
	r.dapps[d.ID] = d
	return nil
}

// Merge adds dApps loaded from the database. Bindings already present are
// kept. A conflicting binding is an error and nothing is merged.
func (r *Registry) Merge(dapps []model.Dapp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make(map[string]string)
	for _, d := range dapps {
		if d.ID == "" {
			return fmt.Errorf("dapp entry requires id")
		}
		for _, c := range d.Contracts {
			k := key(c.Address)
			owner, ok := owners[k]
			if !ok {
				owner, ok = r.contracts[k]
			}
			if ok && owner != d.ID {
				return fmt.Errorf("contract %s bound to both %s and %s", c.Address, owner, d.ID)
			}
			owners[k] = d.ID
		}
	}
	for _, d := range dapps {
		if existing, ok := r.dapps[d.ID]; ok {
			d.Contracts = mergeContracts(existing.Contracts, d.Contracts)
		}
		if err := r.addDappLocked(d); err != nil {
			return err
		}
	}
	return nil
}

func mergeContracts(a, b []model.DappContract) []model.DappContract {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]model.DappContract, 0, len(a)+len(b))
	for _, c := range append(append([]model.DappContract(nil), a...), b...) {
		if seen[key(c.Address)] {
			continue
		}
		seen[key(c.Address)] = true
		out = append(out, c)
	}
	return out
}

// DappByContract returns the dApp owning address.
func (r *Registry) DappByContract(address string) (string, bool) {
	if address == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.contracts[key(address)]
	return id, ok
}

// DappByRelayer returns the dApp operating relayer address.
func (r *Registry) DappByRelayer(address string) (string, bool) {
	if address == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.relayers[key(address)]
	return id, ok
}

// DappByWalletLabel returns the first marker contained in label.
func (r *Registry) DappByWalletLabel(label string) (string, bool) {
	if label == "" {
		return "", false
	}
	l := strings.ToLower(label)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wl := range r.labels {
		if strings.Contains(l, wl.Marker) {
			return wl.DappID, true
		}
	}
	return "", false
}

// KnownToken returns the pricing mapping of a token address.
func (r *Registry) KnownToken(address string) (KnownToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kt, ok := r.knownTokens[key(address)]
	return kt, ok
}

// RegisterKnownToken adds or replaces a pricing mapping at runtime.
func (r *Registry) RegisterKnownToken(address, pricingID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownTokens[key(address)] = KnownToken{Address: key(address), PricingID: pricingID, Symbol: symbol}
}

// Dapp returns a registered dApp by id.
func (r *Registry) Dapp(id string) (model.Dapp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dapps[id]
	return d, ok
}

// Dapps returns all registered dApps ordered by id.
func (r *Registry) Dapps() []model.Dapp {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Dapp, 0, len(r.dapps))
	for _, d := range r.dapps {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

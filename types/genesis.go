package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	uwos "github.com/unwalled/unwalled/libs/os"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

// GenesisAccount is an initial balance.
type GenesisAccount struct {
	Address Address `json:"address"`
	Balance uint64  `json:"balance"`
}

// GenesisDoc defines the initial conditions of the exchange.
type GenesisDoc struct {
	GenesisTime time.Time        `json:"genesis_time"`
	ChainID     string           `json:"chain_id"`
	Accounts    []GenesisAccount `json:"accounts,omitempty"`
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := json.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return uwos.WriteFileAtomic(file, genDocBytes, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}

	seen := make(map[Address]struct{}, len(genDoc.Accounts))
	var total uint64
	for i, acc := range genDoc.Accounts {
		if err := acc.Address.ValidateBasic(); err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		if _, ok := seen[acc.Address]; ok {
			return fmt.Errorf("genesis account %d: duplicate address %s", i, acc.Address)
		}
		seen[acc.Address] = struct{}{}

		if total+acc.Balance < total {
			return fmt.Errorf("genesis account %d: %w", i, ErrBalanceOverflow)
		}
		total += acc.Balance
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now().UTC()
	}

	return nil
}

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := json.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, nil
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := os.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}

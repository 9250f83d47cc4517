package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNoWallet indicates no wallet backend is available at all.
	ErrNoWallet = errors.New("wallet: no wallet backend available")
	// ErrUserRejected indicates the backend refused to authorize account access.
	ErrUserRejected = errors.New("wallet: account access rejected")
	// ErrNotConnected indicates an operation that needs a connected session.
	ErrNotConnected = errors.New("wallet: session not connected")
	// ErrWrongChain indicates the backend is attached to a different chain
	// and refused to switch.
	ErrWrongChain = errors.New("wallet: provider on wrong chain")
)

// Signer is a wallet-backed capability to authorize state-changing calls.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Provider abstracts the wallet backend. The original system talks to a
// browser extension; server-side the same surface is served by a keystore.
type Provider interface {
	// RequestAccounts asks the backend to authorize account access and
	// returns the authorized accounts. Fails with ErrUserRejected when the
	// backend declines.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID reports the chain the backend is currently attached to.
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchChain asks the backend to move to another chain.
	SwitchChain(ctx context.Context, id *big.Int) error
	// Signer returns the signing capability for an authorized account.
	Signer(account common.Address) (Signer, error)
	// OnAccountsChanged registers a callback fired whenever the authorized
	// account set changes. An empty slice means access was cleared. The
	// returned function removes the callback.
	OnAccountsChanged(fn func([]common.Address)) (remove func())
}

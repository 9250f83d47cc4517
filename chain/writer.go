package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"rentchain/config"
	"rentchain/wallet"
)

// TxBackend is the slice of the RPC client the writer needs.
// *ethclient.Client satisfies it.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const receiptPollInterval = 2 * time.Second

// Writer builds, signs and submits marketplace transactions. Signing is
// delegated to the wallet session's signer so keys never cross this package.
type Writer struct {
	backend TxBackend
	chainID *big.Int
	listing common.Address
	rental  common.Address
	escrow  common.Address
	poll    time.Duration
}

func NewWriter(backend TxBackend, chainID *big.Int, contracts config.Contracts) *Writer {
	return &Writer{
		backend: backend,
		chainID: chainID,
		listing: common.HexToAddress(contracts.PropertyListing),
		rental:  common.HexToAddress(contracts.RentalAgreement),
		escrow:  common.HexToAddress(contracts.Escrow),
		poll:    receiptPollInterval,
	}
}

func (w *Writer) submit(ctx context.Context, signer wallet.Signer, to common.Address, parsed abi.ABI, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Hash{}, writeErr(method, err)
	}
	from := signer.Address()
	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, writeErr(method, err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, writeErr(method, err)
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		// Estimation fails when the call would revert, which is the
		// earliest point a bad action can be rejected.
		return common.Hash{}, writeErr(method, err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := signer.SignTx(tx, w.chainID)
	if err != nil {
		return common.Hash{}, writeErr(method, err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, writeErr(method, err)
	}
	return signed.Hash(), nil
}

// ListProperty submits a new listing.
func (w *Writer) ListProperty(ctx context.Context, signer wallet.Signer, params ListingParams) (common.Hash, error) {
	return w.submit(ctx, signer, w.listing, listingABI, "listProperty", nil,
		params.Location,
		params.PricePerMonth,
		params.SecurityDeposit,
		new(big.Int).SetUint64(params.Bedrooms),
		new(big.Int).SetUint64(params.Bathrooms),
		new(big.Int).SetUint64(params.AreaSqMeters),
		big.NewInt(params.AvailableFrom),
		new(big.Int).SetUint64(params.MinRentalMonths),
		params.MetadataHash,
	)
}

// RentProperty opens a rental. The attached value must cover the first
// month's rent plus the security deposit; the contract reverts otherwise.
func (w *Writer) RentProperty(ctx context.Context, signer wallet.Signer, propertyID uint64, value *big.Int) (common.Hash, error) {
	return w.submit(ctx, signer, w.rental, rentalABI, "rentProperty", value,
		new(big.Int).SetUint64(propertyID))
}

// RequestDepositRelease flags the rental's deposit for release. Tenant only.
func (w *Writer) RequestDepositRelease(ctx context.Context, signer wallet.Signer, rentalID uint64) (common.Hash, error) {
	return w.submit(ctx, signer, w.rental, rentalABI, "requestDepositRelease", nil,
		new(big.Int).SetUint64(rentalID))
}

// WithdrawRent pulls the accrued rent out of escrow. Landlord only.
func (w *Writer) WithdrawRent(ctx context.Context, signer wallet.Signer, rentalID uint64) (common.Hash, error) {
	return w.submit(ctx, signer, w.escrow, vaultABI, "withdrawRent", nil,
		new(big.Int).SetUint64(rentalID))
}

// WaitConfirmed polls for the transaction receipt until the context expires.
// A mined receipt with a failed status surfaces as ErrReverted.
func (w *Writer) WaitConfirmed(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return writeErr("waitConfirmed", ErrReverted)
			}
			return nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return writeErr("waitConfirmed", err)
		}
		select {
		case <-ctx.Done():
			return writeErr("waitConfirmed", errors.Join(ErrConfirmTimeout, ctx.Err()))
		case <-ticker.C:
		}
	}
}

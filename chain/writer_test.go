package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type stubSigner struct {
	addr common.Address
	err  error
}

func (s *stubSigner) Address() common.Address { return s.addr }

func (s *stubSigner) SignTx(tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return tx, nil
}

type mockBackend struct {
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	receiptErr  error
	estimateErr error
	pending     uint64
	notFound    int
}

func (m *mockBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return m.pending, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (m *mockBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return 120_000, nil
}

func (m *mockBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if m.notFound > 0 {
		m.notFound--
		return nil, ethereum.NotFound
	}
	receipt, ok := m.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func newTestWriter(backend TxBackend) *Writer {
	w := NewWriter(backend, big.NewInt(1337), testContracts)
	w.poll = time.Millisecond
	return w
}

func TestRentPropertyAttachesValue(t *testing.T) {
	backend := &mockBackend{pending: 3}
	writer := newTestWriter(backend)
	signer := &stubSigner{addr: common.HexToAddress("0xaa")}

	total := big.NewInt(1_500_000_000_000_000_000)
	hash, err := writer.RentProperty(context.Background(), signer, 7, total)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint64(3), tx.Nonce())
	require.Equal(t, common.HexToAddress(testContracts.RentalAgreement), *tx.To())
	require.Zero(t, total.Cmp(tx.Value()))

	method, err := rentalABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	require.Equal(t, "rentProperty", method.Name)
}

func TestListPropertyEncodesParams(t *testing.T) {
	backend := &mockBackend{}
	writer := newTestWriter(backend)
	signer := &stubSigner{addr: common.HexToAddress("0xaa")}

	_, err := writer.ListProperty(context.Background(), signer, ListingParams{
		Location:        "Porto, Portugal",
		PricePerMonth:   big.NewInt(500_000_000_000_000_000),
		SecurityDeposit: big.NewInt(1_000_000_000_000_000_000),
		Bedrooms:        2,
		Bathrooms:       1,
		AreaSqMeters:    60,
		AvailableFrom:   1_700_000_000,
		MinRentalMonths: 12,
		MetadataHash:    "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, common.HexToAddress(testContracts.PropertyListing), *tx.To())
	require.Zero(t, tx.Value().Sign())

	args, err := listingABI.Methods["listProperty"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Equal(t, "Porto, Portugal", args[0])
	require.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", args[8])
}

func TestEstimateFailureRejectsBeforeSend(t *testing.T) {
	backend := &mockBackend{estimateErr: errors.New("execution reverted: already rented")}
	writer := newTestWriter(backend)
	signer := &stubSigner{addr: common.HexToAddress("0xaa")}

	_, err := writer.RentProperty(context.Background(), signer, 7, big.NewInt(1))
	require.Error(t, err)
	var writeFailure *WriteError
	require.ErrorAs(t, err, &writeFailure)
	require.Equal(t, "rentProperty", writeFailure.Op)
	require.Empty(t, backend.sent)
}

func TestWaitConfirmedPollsUntilMined(t *testing.T) {
	backend := &mockBackend{notFound: 3}
	writer := newTestWriter(backend)
	signer := &stubSigner{addr: common.HexToAddress("0xaa")}

	hash, err := writer.WithdrawRent(context.Background(), signer, 4)
	require.NoError(t, err)

	backend.receipts = map[common.Hash]*types.Receipt{
		hash: {Status: types.ReceiptStatusSuccessful},
	}
	require.NoError(t, writer.WaitConfirmed(context.Background(), hash))
}

func TestWaitConfirmedSurfacesRevert(t *testing.T) {
	backend := &mockBackend{}
	writer := newTestWriter(backend)
	hash := common.HexToHash("0xdead")
	backend.receipts = map[common.Hash]*types.Receipt{
		hash: {Status: types.ReceiptStatusFailed},
	}

	err := writer.WaitConfirmed(context.Background(), hash)
	require.ErrorIs(t, err, ErrReverted)
}

func TestWaitConfirmedBoundedByContext(t *testing.T) {
	backend := &mockBackend{receiptErr: ethereum.NotFound}
	writer := newTestWriter(backend)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := writer.WaitConfirmed(ctx, common.HexToHash("0xbeef"))
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

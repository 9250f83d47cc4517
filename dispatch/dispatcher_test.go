package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"rentchain/amount"
	"rentchain/chain"
	"rentchain/metadata"
	"rentchain/wallet"
)

var (
	landlord = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tenant   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type fakeSigner struct{ addr common.Address }

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignTx(tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	return tx, nil
}

type fakeSession struct {
	account   common.Address
	connected bool
}

func (s *fakeSession) Account() (common.Address, bool) { return s.account, s.connected }

func (s *fakeSession) Signer() wallet.Signer {
	if !s.connected {
		return nil
	}
	return &fakeSigner{addr: s.account}
}

type sentTx struct {
	method     string
	propertyID uint64
	rentalID   uint64
	value      *big.Int
	params     chain.ListingParams
}

type fakeWriter struct {
	mu         sync.Mutex
	sent       []sentTx
	sendErr    error
	confirmErr error
}

func (w *fakeWriter) record(tx sentTx) (common.Hash, error) {
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.mu.Lock()
	w.sent = append(w.sent, tx)
	n := len(w.sent)
	w.mu.Unlock()
	return common.BigToHash(big.NewInt(int64(n))), nil
}

func (w *fakeWriter) ListProperty(_ context.Context, _ wallet.Signer, params chain.ListingParams) (common.Hash, error) {
	return w.record(sentTx{method: "listProperty", params: params})
}

func (w *fakeWriter) RentProperty(_ context.Context, _ wallet.Signer, propertyID uint64, value *big.Int) (common.Hash, error) {
	return w.record(sentTx{method: "rentProperty", propertyID: propertyID, value: value})
}

func (w *fakeWriter) RequestDepositRelease(_ context.Context, _ wallet.Signer, rentalID uint64) (common.Hash, error) {
	return w.record(sentTx{method: "requestDepositRelease", rentalID: rentalID})
}

func (w *fakeWriter) WithdrawRent(_ context.Context, _ wallet.Signer, rentalID uint64) (common.Hash, error) {
	return w.record(sentTx{method: "withdrawRent", rentalID: rentalID})
}

func (w *fakeWriter) WaitConfirmed(context.Context, common.Hash) error { return w.confirmErr }

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}

type fakeChainReader struct {
	property *chain.Property
	rentalID uint64
}

func (r *fakeChainReader) GetProperty(context.Context, uint64) (*chain.Property, error) {
	if r.property == nil {
		return &chain.Property{ID: new(big.Int)}, nil
	}
	return r.property, nil
}

func (r *fakeChainReader) GetActiveRentalID(context.Context, uint64) (uint64, error) {
	return r.rentalID, nil
}

type fakePinner struct {
	pins int
	err  error
	doc  metadata.Metadata
}

func (p *fakePinner) PinListing(_ context.Context, _ string, _ io.Reader, doc metadata.Metadata) (*metadata.PinResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.pins++
	p.doc = doc
	return &metadata.PinResult{
		FileHash:     "QmFileFileFileFileFileFileFileFileFile01",
		FileURL:      "https://gw/ipfs/QmFileFileFileFileFileFileFileFileFile01",
		MetadataHash: "QmMetaMetaMetaMetaMetaMetaMetaMetaMeta01",
	}, nil
}

type fakeMarker struct {
	mu     sync.Mutex
	marked []uint64
}

func (m *fakeMarker) MarkRented(id uint64) {
	m.mu.Lock()
	m.marked = append(m.marked, id)
	m.mu.Unlock()
}

func listedFixture() *chain.Property {
	return &chain.Property{
		ID:              big.NewInt(7),
		Owner:           landlord,
		Location:        "Lisbon",
		PricePerMonth:   big.NewInt(500_000_000_000_000_000),
		SecurityDeposit: big.NewInt(1_000_000_000_000_000_000),
		Listed:          true,
	}
}

func newTestDispatcher(session WalletSession, writer TxWriter, reader PropertyReader, pinner ListingPinner, marker RentedMarker) *Dispatcher {
	return NewDispatcher(session, writer, reader, pinner, marker, time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validListing() ListingInput {
	return ListingInput{
		Title:      "Sunny riverside flat",
		Location:   "Lisbon, Portugal",
		PriceEth:   "0.5",
		DepositEth: "1.0",
		Bedrooms:   2,
		ImageName:  "flat.jpg",
		Image:      bytes.NewReader([]byte("jpeg")),
	}
}

func TestDispatchWithoutWalletRejected(t *testing.T) {
	writer := &fakeWriter{}
	pinner := &fakePinner{}
	d := newTestDispatcher(&fakeSession{}, writer, &fakeChainReader{}, pinner, nil)

	_, err := d.RentProperty(context.Background(), 7)
	require.ErrorIs(t, err, ErrWalletRequired)

	_, err = d.ListProperty(context.Background(), validListing())
	require.ErrorIs(t, err, ErrWalletRequired)

	require.Zero(t, writer.count())
	require.Zero(t, pinner.pins)
}

func TestListPropertyRejectsBadAmountBeforePinning(t *testing.T) {
	writer := &fakeWriter{}
	pinner := &fakePinner{}
	d := newTestDispatcher(&fakeSession{account: landlord, connected: true}, writer, &fakeChainReader{}, pinner, nil)

	input := validListing()
	input.PriceEth = "abc"
	_, err := d.ListProperty(context.Background(), input)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "price", verr.Field)
	require.ErrorContains(t, err, amount.ErrMalformed.Error())
	require.Zero(t, pinner.pins)
	require.Zero(t, writer.count())
}

func TestListPropertyPinsThenSubmits(t *testing.T) {
	writer := &fakeWriter{}
	pinner := &fakePinner{}
	d := newTestDispatcher(&fakeSession{account: landlord, connected: true}, writer, &fakeChainReader{}, pinner, nil)

	action, err := d.ListProperty(context.Background(), validListing())
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingConfirmation, action.Status)
	require.Equal(t, 1, pinner.pins)
	require.Equal(t, "Sunny riverside flat", pinner.doc.Title)

	require.Equal(t, 1, writer.count())
	sent := writer.sent[0]
	require.Equal(t, "listProperty", sent.method)
	require.Equal(t, "QmMetaMetaMetaMetaMetaMetaMetaMetaMeta01", sent.params.MetadataHash)
	require.Equal(t, "500000000000000000", sent.params.PricePerMonth.String())
	require.Equal(t, "1000000000000000000", sent.params.SecurityDeposit.String())

	d.Flush()
	settled, err := d.Action(action.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, settled.Status)
}

func TestRentPropertyAttachesRentPlusDeposit(t *testing.T) {
	writer := &fakeWriter{}
	marker := &fakeMarker{}
	reader := &fakeChainReader{property: listedFixture()}
	d := newTestDispatcher(&fakeSession{account: tenant, connected: true}, writer, reader, &fakePinner{}, marker)

	action, err := d.RentProperty(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingConfirmation, action.Status)
	require.Equal(t, "1500000000000000000", writer.sent[0].value.String())

	d.Flush()
	require.Equal(t, []uint64{7}, marker.marked)
}

func TestRentOwnPropertyRejected(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeChainReader{property: listedFixture()}
	d := newTestDispatcher(&fakeSession{account: landlord, connected: true}, writer, reader, &fakePinner{}, nil)

	_, err := d.RentProperty(context.Background(), 7)
	require.ErrorIs(t, err, ErrOwnProperty)
	require.Zero(t, writer.count())
}

func TestRentAlreadyRentedRejected(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeChainReader{property: listedFixture(), rentalID: 11}
	d := newTestDispatcher(&fakeSession{account: tenant, connected: true}, writer, reader, &fakePinner{}, nil)

	_, err := d.RentProperty(context.Background(), 7)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Zero(t, writer.count())
}

func TestFailedConfirmationMarksActionFailed(t *testing.T) {
	writer := &fakeWriter{confirmErr: chain.ErrReverted}
	marker := &fakeMarker{}
	reader := &fakeChainReader{property: listedFixture()}
	d := newTestDispatcher(&fakeSession{account: tenant, connected: true}, writer, reader, &fakePinner{}, marker)

	action, err := d.RentProperty(context.Background(), 7)
	require.NoError(t, err)

	d.Flush()
	settled, err := d.Action(action.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, settled.Status)
	require.Contains(t, settled.Error, "reverted")
	require.Empty(t, marker.marked)
}

func TestSubscribersObserveLifecycle(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeChainReader{property: listedFixture()}
	d := newTestDispatcher(&fakeSession{account: tenant, connected: true}, writer, reader, &fakePinner{}, nil)

	var mu sync.Mutex
	var seen []ActionStatus
	cancel := d.Subscribe(func(a PendingAction) {
		mu.Lock()
		seen = append(seen, a.Status)
		mu.Unlock()
	})
	defer cancel()

	_, err := d.RentProperty(context.Background(), 7)
	require.NoError(t, err)
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []ActionStatus{StatusSubmitting, StatusAwaitingConfirmation, StatusConfirmed}, seen)
}

func TestActionUnknownID(t *testing.T) {
	d := newTestDispatcher(&fakeSession{}, &fakeWriter{}, &fakeChainReader{}, &fakePinner{}, nil)
	_, err := d.Action("no-such-id")
	require.ErrorIs(t, err, ErrActionNotFound)
}

func TestSubmitFailureReportedImmediately(t *testing.T) {
	writer := &fakeWriter{sendErr: errors.New("nonce too low")}
	reader := &fakeChainReader{property: listedFixture()}
	d := newTestDispatcher(&fakeSession{account: tenant, connected: true}, writer, reader, &fakePinner{}, nil)

	action, err := d.RentProperty(context.Background(), 7)
	require.Error(t, err)
	require.Equal(t, StatusFailed, action.Status)
	require.Contains(t, action.Error, "nonce too low")
}

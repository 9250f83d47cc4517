package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"rentchain/config"
)

// ContractCaller is the slice of the RPC client the reader needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader issues typed view calls against the marketplace contracts. Every
// method reads the latest block; the marketplace tolerates reads from
// slightly different heights within one view assembly.
type Reader struct {
	caller  ContractCaller
	listing common.Address
	rental  common.Address
	escrow  common.Address
}

func NewReader(caller ContractCaller, contracts config.Contracts) *Reader {
	return &Reader{
		caller:  caller,
		listing: common.HexToAddress(contracts.PropertyListing),
		rental:  common.HexToAddress(contracts.RentalAgreement),
		escrow:  common.HexToAddress(contracts.Escrow),
	}
}

func (r *Reader) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, readErr(method, err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, readErr(method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, readErr(method, err)
	}
	return out, nil
}

// GetTotalProperties returns the highest property id ever assigned.
// Property ids are dense and start at 1.
func (r *Reader) GetTotalProperties(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, r.listing, listingABI, "getTotalProperties")
	if err != nil {
		return 0, err
	}
	return asBig(out, 0).Uint64(), nil
}

// GetProperty fetches one property record. Unknown ids come back with a
// zero ID field; callers check Exists.
func (r *Reader) GetProperty(ctx context.Context, id uint64) (*Property, error) {
	out, err := r.call(ctx, r.listing, listingABI, "getProperty", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 12 {
		return nil, readErr("getProperty", fmt.Errorf("unexpected output arity %d", len(out)))
	}
	return &Property{
		ID:              asBig(out, 0),
		Owner:           asAddress(out, 1),
		Location:        asString(out, 2),
		PricePerMonth:   asBig(out, 3),
		SecurityDeposit: asBig(out, 4),
		Bedrooms:        asBig(out, 5).Uint64(),
		Bathrooms:       asBig(out, 6).Uint64(),
		AreaSqMeters:    asBig(out, 7).Uint64(),
		AvailableFrom:   asBig(out, 8).Int64(),
		MinRentalMonths: asBig(out, 9).Uint64(),
		Listed:          asBool(out, 10),
		MetadataHash:    asString(out, 11),
	}, nil
}

// GetOwnerProperties returns the property ids owned by the address.
func (r *Reader) GetOwnerProperties(ctx context.Context, owner common.Address) ([]uint64, error) {
	out, err := r.call(ctx, r.listing, listingABI, "getOwnerProperties", owner)
	if err != nil {
		return nil, err
	}
	return asIDList(out, 0), nil
}

// GetActiveRentalID returns the rental currently bound to the property, or
// zero when the property is vacant.
func (r *Reader) GetActiveRentalID(ctx context.Context, propertyID uint64) (uint64, error) {
	out, err := r.call(ctx, r.rental, rentalABI, "getActiveRentalIdForProperty", new(big.Int).SetUint64(propertyID))
	if err != nil {
		return 0, err
	}
	return asBig(out, 0).Uint64(), nil
}

// GetRentalDetails fetches one rental agreement record.
func (r *Reader) GetRentalDetails(ctx context.Context, rentalID uint64) (*Rental, error) {
	out, err := r.call(ctx, r.rental, rentalABI, "getRentalDetails", new(big.Int).SetUint64(rentalID))
	if err != nil {
		return nil, err
	}
	if len(out) != 11 {
		return nil, readErr("getRentalDetails", fmt.Errorf("unexpected output arity %d", len(out)))
	}
	return &Rental{
		ID:                      asBig(out, 0),
		PropertyID:              asBig(out, 1),
		Tenant:                  asAddress(out, 2),
		Landlord:                asAddress(out, 3),
		Start:                   asBig(out, 4).Int64(),
		End:                     asBig(out, 5).Int64(),
		MonthlyRent:             asBig(out, 6),
		SecurityDeposit:         asBig(out, 7),
		PaidUntil:               asBig(out, 8).Int64(),
		State:                   RentalState(asUint8(out, 9)),
		DepositReleaseRequested: asBool(out, 10),
	}, nil
}

// GetTenantRentals returns the rental ids ever opened by the tenant,
// including ended ones.
func (r *Reader) GetTenantRentals(ctx context.Context, tenant common.Address) ([]uint64, error) {
	out, err := r.call(ctx, r.rental, rentalABI, "getTenantRentals", tenant)
	if err != nil {
		return nil, err
	}
	return asIDList(out, 0), nil
}

// GetDepositBalance returns the security deposit still held in escrow for
// the rental.
func (r *Reader) GetDepositBalance(ctx context.Context, rentalID uint64) (*big.Int, error) {
	out, err := r.call(ctx, r.escrow, vaultABI, "getDepositBalance", new(big.Int).SetUint64(rentalID))
	if err != nil {
		return nil, err
	}
	return asBig(out, 0), nil
}

// GetRentBalance returns the rent accrued in escrow and withdrawable by the
// landlord.
func (r *Reader) GetRentBalance(ctx context.Context, rentalID uint64) (*big.Int, error) {
	out, err := r.call(ctx, r.escrow, vaultABI, "getRentBalance", new(big.Int).SetUint64(rentalID))
	if err != nil {
		return nil, err
	}
	return asBig(out, 0), nil
}

func asBig(out []interface{}, i int) *big.Int {
	if i < len(out) {
		if v, ok := out[i].(*big.Int); ok && v != nil {
			return v
		}
	}
	return new(big.Int)
}

func asAddress(out []interface{}, i int) common.Address {
	if i < len(out) {
		if v, ok := out[i].(common.Address); ok {
			return v
		}
	}
	return common.Address{}
}

func asString(out []interface{}, i int) string {
	if i < len(out) {
		if v, ok := out[i].(string); ok {
			return v
		}
	}
	return ""
}

func asBool(out []interface{}, i int) bool {
	if i < len(out) {
		if v, ok := out[i].(bool); ok {
			return v
		}
	}
	return false
}

func asUint8(out []interface{}, i int) uint8 {
	if i < len(out) {
		if v, ok := out[i].(uint8); ok {
			return v
		}
	}
	return 0
}

func asIDList(out []interface{}, i int) []uint64 {
	if i >= len(out) {
		return nil
	}
	raw, ok := out[i].([]*big.Int)
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		if v != nil {
			ids = append(ids, v.Uint64())
		}
	}
	return ids
}

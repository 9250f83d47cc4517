package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RentalState mirrors the rental agreement contract's lifecycle enum.
type RentalState uint8

const (
	RentalActive RentalState = iota
	RentalTerminating
	RentalEnded
)

func (s RentalState) String() string {
	switch s {
	case RentalActive:
		return "active"
	case RentalTerminating:
		return "terminating"
	case RentalEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Property is the on-chain listing record. Availability is deliberately
// absent: it is derived at read time from the active rental id, never
// stored.
type Property struct {
	ID              *big.Int
	Owner           common.Address
	Location        string
	PricePerMonth   *big.Int
	SecurityDeposit *big.Int
	Bedrooms        uint64
	Bathrooms       uint64
	AreaSqMeters    uint64
	AvailableFrom   int64
	MinRentalMonths uint64
	Listed          bool
	MetadataHash    string
}

// Exists reports whether the record refers to a real property. The contract
// returns a zero id for unknown property ids.
func (p *Property) Exists() bool {
	return p != nil && p.ID != nil && p.ID.Sign() > 0
}

// Rental is the on-chain rental agreement record.
type Rental struct {
	ID                      *big.Int
	PropertyID              *big.Int
	Tenant                  common.Address
	Landlord                common.Address
	Start                   int64
	End                     int64
	MonthlyRent             *big.Int
	SecurityDeposit         *big.Int
	PaidUntil               int64
	State                   RentalState
	DepositReleaseRequested bool
}

// ListingParams carries everything the listing call needs besides the
// signer. Amounts are base-unit integers; conversion from decimal strings
// happens in the dispatcher before this struct is built.
type ListingParams struct {
	Location        string
	PricePerMonth   *big.Int
	SecurityDeposit *big.Int
	Bedrooms        uint64
	Bathrooms       uint64
	AreaSqMeters    uint64
	AvailableFrom   int64
	MinRentalMonths uint64
	MetadataHash    string
}

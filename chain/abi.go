package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The marketplace touches three contracts. Only the methods the adapter
// calls are declared; the deployed contracts carry more surface than this.
const (
	propertyListingABI = `[
  {"type":"function","name":"getTotalProperties","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getProperty","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"owner","type":"address"},
    {"name":"location","type":"string"},
    {"name":"pricePerMonth","type":"uint256"},
    {"name":"securityDeposit","type":"uint256"},
    {"name":"bedrooms","type":"uint256"},
    {"name":"bathrooms","type":"uint256"},
    {"name":"areaSqMeters","type":"uint256"},
    {"name":"availableFrom","type":"uint256"},
    {"name":"minRentalPeriod","type":"uint256"},
    {"name":"isListed","type":"bool"},
    {"name":"ipfsMetadataHash","type":"string"}
  ]},
  {"type":"function","name":"getOwnerProperties","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"listProperty","stateMutability":"nonpayable","inputs":[
    {"name":"location","type":"string"},
    {"name":"pricePerMonth","type":"uint256"},
    {"name":"securityDeposit","type":"uint256"},
    {"name":"bedrooms","type":"uint256"},
    {"name":"bathrooms","type":"uint256"},
    {"name":"areaSqMeters","type":"uint256"},
    {"name":"availableFrom","type":"uint256"},
    {"name":"minRentalPeriod","type":"uint256"},
    {"name":"ipfsMetadataHash","type":"string"}
  ],"outputs":[]}
]`

	rentalAgreementABI = `[
  {"type":"function","name":"getActiveRentalIdForProperty","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getRentalDetails","stateMutability":"view","inputs":[{"name":"rentalId","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"propertyId","type":"uint256"},
    {"name":"tenant","type":"address"},
    {"name":"landlord","type":"address"},
    {"name":"startDate","type":"uint256"},
    {"name":"endDate","type":"uint256"},
    {"name":"monthlyRentAmount","type":"uint256"},
    {"name":"securityDepositAmount","type":"uint256"},
    {"name":"paidUntil","type":"uint256"},
    {"name":"state","type":"uint8"},
    {"name":"depositReleaseRequested","type":"bool"}
  ]},
  {"type":"function","name":"getTenantRentals","stateMutability":"view","inputs":[{"name":"tenant","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"rentProperty","stateMutability":"payable","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"requestDepositRelease","stateMutability":"nonpayable","inputs":[{"name":"rentalId","type":"uint256"}],"outputs":[]}
]`

	escrowABI = `[
  {"type":"function","name":"getDepositBalance","stateMutability":"view","inputs":[{"name":"rentalId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getRentBalance","stateMutability":"view","inputs":[{"name":"rentalId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"withdrawRent","stateMutability":"nonpayable","inputs":[{"name":"rentalId","type":"uint256"}],"outputs":[]}
]`
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}

var (
	listingABI = mustParseABI("property listing", propertyListingABI)
	rentalABI  = mustParseABI("rental agreement", rentalAgreementABI)
	vaultABI   = mustParseABI("escrow", escrowABI)
)

package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OwnershipModel describes how a park's operating entity is structured.
type OwnershipModel string

const (
	// OwnershipDirect means operator funds hold turbines directly.
	OwnershipDirect OwnershipModel = "DIRECT"
	// OwnershipNetworkCompany means costs pass through an intermediary network
	// company before reaching the operator funds.
	OwnershipNetworkCompany OwnershipModel = "NETWORK_COMPANY"
)

// Park is a wind park owned by a tenant.
type Park struct {
	ID             int64
	TenantID       int64
	Name           string
	OwnershipModel OwnershipModel
	// PoolAreaM2 is the total pooled lease area of the park in square metres.
	PoolAreaM2 decimal.Decimal
	// TaxableCostPortionPct is the share of pass-through costs subject to VAT
	// when the park settles through a network company.
	TaxableCostPortionPct decimal.Decimal
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Turbine is a single wind energy installation inside a park.
type Turbine struct {
	ID          int64
	ParkID      int64
	Designation string
	// RevenueSharePct is the turbine's apportionment of total park revenue.
	RevenueSharePct decimal.Decimal
	CommissionedAt  time.Time
}

// Lease is a per-lessor contract covering turbines and/or pooled area.
// Read-only to the settlement core.
type Lease struct {
	ID            int64
	ParkID        int64
	LessorID      int64
	LessorName    string
	LessorAddress string
	TurbineIDs    []int64
	// PoolAreaM2 is the lessor's contribution to the park's pooled area.
	PoolAreaM2 decimal.Decimal
	// MinimumRentPerTurbine is the guaranteed annual floor per turbine.
	MinimumRentPerTurbine decimal.Decimal
	// WEASharePct scales the turbine-derived revenue passed to the lessor.
	WEASharePct decimal.Decimal
	// PoolSharePct scales the pool-derived revenue passed to the lessor.
	PoolSharePct decimal.Decimal
}

// OperatorFund holds an operating interest in a park's turbines.
type OperatorFund struct {
	ID           int64
	ParkID       int64
	Name         string
	OwnershipPct decimal.Decimal
}

// ParkSnapshot bundles everything the settlement calculator needs for one park.
type ParkSnapshot struct {
	Park     Park
	Turbines []Turbine
	Leases   []Lease
}

// TurbineByID returns the snapshot turbine with the given id.
func (s ParkSnapshot) TurbineByID(id int64) (Turbine, bool) {
	for _, t := range s.Turbines {
		if t.ID == id {
			return t, true
		}
	}
	return Turbine{}, false
}

// ErrParkNotFound indicates the park does not exist for the tenant.
var ErrParkNotFound = errors.New("masterdata: park not found")

package domain

// EligibilityAll matches any state or farmer type.
const EligibilityAll = "all"

type FarmerProfile struct {
	State       string  `json:"state"`
	FarmerType  string  `json:"farmer_type"`
	LandHolding float64 `json:"land_holding"`
}

// PolicyRule is one catalogue row. A nil MaxLandHolding means no limit; zero
// is a limit like any other.
type PolicyRule struct {
	Policy         string   `json:"policy"`
	State          string   `json:"state"`
	FarmerType     string   `json:"farmer_type"`
	MaxLandHolding *float64 `json:"max_land_holding,omitempty"`
}

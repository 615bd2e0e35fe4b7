package models

// CompletenessReport is the per-section quality summary
type CompletenessReport struct {
	Completeness   float64 `json:"completeness" bson:"completeness"`
	Confidence     float64 `json:"confidence" bson:"confidence"`
	FilledRequired int     `json:"filledRequired" bson:"filled_required"`
	TotalRequired  int     `json:"totalRequired" bson:"total_required"`
	FilledOptional int     `json:"filledOptional" bson:"filled_optional"`
	TotalOptional  int     `json:"totalOptional" bson:"total_optional"`
}

// DocumentReport aggregates section reports for a whole document
type DocumentReport struct {
	Sections     map[string]CompletenessReport `json:"sections" bson:"sections"`
	Completeness float64                       `json:"completeness" bson:"completeness"`
	Confidence   float64                       `json:"confidence" bson:"confidence"`
	Usable       bool                          `json:"usable" bson:"usable"`
	Status       string                        `json:"status" bson:"status"`
	Flags        []string                      `json:"flags" bson:"flags"`
	Operator     *OperatorInfo                 `json:"operator,omitempty" bson:"operator,omitempty"`
}

// OperatorInfo is the grid operator resolved for the document
type OperatorInfo struct {
	Name       string  `json:"name" bson:"name"`
	Region     string  `json:"region,omitempty" bson:"region,omitempty"`
	Source     string  `json:"source" bson:"source"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// Document statuses
const (
	StatusUsable      = "usable"
	StatusNeedsReview = "needs_review"
	StatusIncomplete  = "incomplete"
)

// Quality flags
const (
	FlagMissingPPE             = "MISSING_PPE"
	FlagMissingTariff          = "MISSING_TARIFF"
	FlagMissingIdentity        = "MISSING_IDENTITY"
	FlagMissingAddress         = "MISSING_ADDRESS"
	FlagPartialBilling         = "PARTIAL_BILLING"
	FlagLowConfidence          = "LOW_CONFIDENCE"
	FlagOperatorFromPostalCode = "OPERATOR_FROM_POSTAL_CODE"
)

// IsValidStatus checks the report status against the known statuses
func (r *DocumentReport) IsValidStatus() bool {
	switch r.Status {
	case StatusUsable, StatusNeedsReview, StatusIncomplete:
		return true
	}
	return false
}

// HasFlag reports whether the report carries a quality flag
func (r *DocumentReport) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

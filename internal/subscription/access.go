// AngelaMos | 2026
// access.go

package subscription

type Feature string

const (
	FeatureCalendar             Feature = "calendar"
	FeatureUnlimitedAssignments Feature = "unlimited_assignments"
	FeatureAdvancedExport       Feature = "advanced_export"
	FeatureProFeatures          Feature = "pro_features"
	FeatureBasicFeatures        Feature = "basic_features"
)

var featureRules = map[Feature]func(s *Subscription) bool{
	FeatureCalendar: func(s *Subscription) bool {
		return s.HasCalendarAccess
	},
	FeatureUnlimitedAssignments: func(s *Subscription) bool {
		return s.IsUnlimited()
	},
	FeatureAdvancedExport: func(s *Subscription) bool {
		return s.PlanID.IsPaid()
	},
	FeatureProFeatures: func(s *Subscription) bool {
		return s.PlanID == PlanPro
	},
	FeatureBasicFeatures: func(s *Subscription) bool {
		return s.PlanID.IsPaid()
	},
}

func (f Feature) Valid() bool {
	_, ok := featureRules[f]
	return ok
}

// Access is the outcome of a feature gate. The zero value is AccessUnknown
// so an unset result can never read as granted.
type Access int

const (
	AccessUnknown Access = iota
	AccessDenied
	AccessGranted
)

func (a Access) Granted() bool {
	return a == AccessGranted
}

func (a Access) String() string {
	switch a {
	case AccessGranted:
		return "granted"
	case AccessDenied:
		return "denied"
	default:
		return "unknown"
	}
}

func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Access evaluates feature against the record. Unknown features are denied.
func (s *Subscription) Access(feature Feature) Access {
	rule, ok := featureRules[feature]
	if !ok || !rule(s) {
		return AccessDenied
	}
	return AccessGranted
}

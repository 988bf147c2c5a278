package chat

import "strings"

// Category selects the system instruction sent to the model.
type Category string

const (
	CategoryGeneral Category = "GENERAL"
	CategoryCrisis  Category = "CRISIS_SUPPORT"
	CategoryTherapy Category = "THERAPY"
)

// ParseCategory is case-insensitive and falls back to CategoryGeneral.
func ParseCategory(raw string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(raw))) {
	case CategoryCrisis:
		return CategoryCrisis
	case CategoryTherapy:
		return CategoryTherapy
	default:
		return CategoryGeneral
	}
}

// DefaultName is the display name given to a freshly created session.
func (c Category) DefaultName() string {
	switch c {
	case CategoryCrisis:
		return "Crisis Support"
	case CategoryTherapy:
		return "Therapy Session"
	default:
		return "General Chat"
	}
}

package projector

import "slices"

// Status styles.
const (
	StyleSuccess = "success"
	StyleDanger  = "danger"
	StyleDefault = "default"
)

var (
	successValues = []string{"Held", "Closed Won", "Closed", "Completed", "Complete", "Sold"}
	dangerValues  = []string{"Not Held", "Closed Lost", "Dead"}
)

// StatusStyle resolves the display style of a status value: the field's
// own style map first, then the per-type status styles, then the fixed
// success and danger value lists.
func (p *Projector) StatusStyle(entityType, field, value string) string {
	if style := p.meta.FieldStyle(entityType, field, value); style != "" {
		return style
	}
	if style := p.meta.StatusStyle(entityType, value); style != "" {
		return style
	}
	switch {
	case slices.Contains(successValues, value):
		return StyleSuccess
	case slices.Contains(dangerValues, value):
		return StyleDanger
	default:
		return StyleDefault
	}
}

package domain

// Subscription is an explicit user-follows-entity relationship, unique on
// the (UserID, EntityID, EntityType) triple.
type Subscription struct {
	UserID     string `json:"userId"`
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

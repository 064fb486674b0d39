package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/reqcache"
)

func TestHandleAudited_RecordsChangedFields(t *testing.T) {
	p, _ := newTestProjector(t)

	lead := domain.LoadedEntity("Lead", "l1", map[string]any{
		"source":      "Web",
		"description": "old notes",
		"status":      "New",
	})
	lead.Set("source", "Partner")
	lead.Set("description", "new notes")
	lead.Set("status", "Converted")

	n, err := p.HandleAudited(t.Context(), NewAuditCache(reqcache.New()), lead, Options{ModifiedByID: "u2", CreatedByID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, domain.NoteUpdate, n.Type)
	assert.Equal(t, "u2", n.CreatedByID)
	assert.Equal(t, domain.StringArray([]string{"description", "source"}), n.Data["fields"])

	attrs := n.Data["attributes"].(domain.Object)
	was := attrs["was"].(domain.Object)
	became := attrs["became"].(domain.Object)
	assert.Equal(t, domain.String("Web"), was["source"])
	assert.Equal(t, domain.String("Partner"), became["source"])
	assert.NotContains(t, was, "description", "long text is listed by name only")
	assert.NotContains(t, became, "status")
	assert.Empty(t, n.UsersIDs, "update notes carry no ownership")
}

func TestHandleAudited_NoChange(t *testing.T) {
	p, _ := newTestProjector(t)

	acct := domain.LoadedEntity("Account", "a1", map[string]any{"name": "Acme", "status": "Active"})
	acct.Set("status", "Closed Won")
	acct.Set("description", "not audited")

	n, err := p.HandleAudited(t.Context(), nil, acct, Options{})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestHandleAudited_NewEntityIgnored(t *testing.T) {
	p, _ := newTestProjector(t)

	n, err := p.HandleAudited(t.Context(), nil, domain.NewEntity("Account", "a1", map[string]any{"name": "Acme"}), Options{})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestHandleAudited_LinkParentKeepsPreviousName(t *testing.T) {
	p, s := newTestProjector(t)
	ctx := t.Context()

	_, err := s.CreateEntity(ctx, "Account", map[string]any{"id": "a1", "name": "Acme"})
	require.NoError(t, err)

	task := domain.LoadedEntity("Task", "t1", map[string]any{
		"parentId":   "a1",
		"parentType": "Account",
	})
	task.Set("parentId", "k9")
	task.Set("parentType", "Case")
	task.Set("parentName", "Printer on fire")

	n, err := p.HandleAudited(ctx, nil, task, Options{Actor: &domain.User{ID: "u1"}})
	require.NoError(t, err)
	require.NotNil(t, n)

	attrs := n.Data["attributes"].(domain.Object)
	was := attrs["was"].(domain.Object)
	became := attrs["became"].(domain.Object)
	assert.Equal(t, domain.String("Acme"), was["parentName"])
	assert.Equal(t, domain.String("a1"), was["parentId"])
	assert.Equal(t, domain.String("Printer on fire"), became["parentName"])
	assert.Equal(t, "u1", n.CreatedByID)
}

func TestHandleAudited_Currency(t *testing.T) {
	p, _ := newTestProjector(t)

	opp := domain.LoadedEntity("Opportunity", "o1", map[string]any{"amount": 100, "amountCurrency": "USD"})
	opp.Set("amountCurrency", "EUR")

	n, err := p.HandleAudited(t.Context(), nil, opp, Options{})
	require.NoError(t, err)
	require.NotNil(t, n)

	became := n.Data["attributes"].(domain.Object)["became"].(domain.Object)
	assert.Equal(t, domain.Int(100), became["amount"])
	assert.Equal(t, domain.String("EUR"), became["amountCurrency"])
	assert.Equal(t, domain.SystemUserID, n.CreatedByID)
}

func TestStatusStyle_Fallbacks(t *testing.T) {
	p, _ := newTestProjector(t)

	assert.Equal(t, StyleSuccess, p.StatusStyle("Meeting", "status", "Held"))
	assert.Equal(t, StyleDanger, p.StatusStyle("Meeting", "status", "Not Held"))
	assert.Equal(t, StyleDefault, p.StatusStyle("Meeting", "status", "Planned"))
	assert.Equal(t, "info", p.StatusStyle("Lead", "status", "Recycled"))
}

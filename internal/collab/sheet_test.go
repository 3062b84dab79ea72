package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimbot/internal/collab"
)

func TestMatchOwner(t *testing.T) {
	rows := []collab.SheetRow{
		{TaskName: "Q3 Report", OwnerName: "Alex", OwnerEmail: "alex@acme.test"},
		{TaskName: "Deploy Pipeline", OwnerName: "Bailey"},
		{TaskName: "Orphan Row", OwnerName: ""},
	}

	m := collab.MatchOwner(rows, "Q3 Report")
	require.NotNil(t, m)
	assert.Equal(t, "Alex", m.OwnerName)
	assert.Equal(t, "alex@acme.test", m.OwnerEmail)

	// matching ignores case and surrounding whitespace
	m = collab.MatchOwner(rows, "  q3 report ")
	require.NotNil(t, m)
	assert.Equal(t, "Alex", m.OwnerName)

	// unmapped task
	assert.Nil(t, collab.MatchOwner(rows, "Unknown Task"))

	// a row with no owner name is not a mapping
	assert.Nil(t, collab.MatchOwner(rows, "Orphan Row"))
}

func TestMatchOwnerAmbiguousRows(t *testing.T) {
	rows := []collab.SheetRow{
		{TaskName: "Q3 Report", OwnerName: "Alex"},
		{TaskName: "q3 report", OwnerName: "Bailey"},
	}
	// duplicate task rows are ambiguous, not first-wins
	assert.Nil(t, collab.MatchOwner(rows, "Q3 Report"))
}

package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"askgive/internal"
)

func TestExportMembersToXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "members.xlsx")
	members := []internal.Member{{
		ID: "sarah-jenkins", Name: "Sarah Jenkins", Company: "Acme", Specialty: "Architecture",
		PhoneNumber: "919876543210", Gives: []string{"CFO", "Builder"}, Asks: []string{"Banker"},
	}}
	require.NoError(t, ExportMembersToXLSX(members, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Members")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, memberHeaders, rows[0])
	assert.Equal(t, "Sarah Jenkins", rows[1][1])
	assert.Equal(t, "CFO\nBuilder", rows[1][7])
}

func TestExportMatchesToXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "matches.xlsx")
	matches := []internal.SmartMatch{{Member: "Alice", Give: "Architect", MatchingAsk: "Architect", Score: 88, Reason: "same trade", Source: internal.MatchSourceAI}}
	require.NoError(t, ExportMatchesToXLSX(matches, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Matches")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Alice", "Architect", "Architect", "88", "same trade", "ai"}, rows[1])
}

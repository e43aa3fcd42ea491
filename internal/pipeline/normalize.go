package pipeline

import (
	"strings"

	"askgive/internal"
	"askgive/internal/util"
)

// Column layout of a roster sheet. Rows 0 and 1 hold the merged Give/Ask
// header and the sub header; member data starts at row 2.
const (
	firstDataRow = 2

	colMemberName      = 1
	colGivePerson      = 2
	colGiveDesignation = 3
	colGiveCompany     = 4
	colAskPerson       = 5
	colAskDesignation  = 6
	colAskCompany      = 7
)

// NormalizeWorkbook folds every sheet of a roster workbook into one member
// list. Members keep the order in which their name was first seen.
func NormalizeWorkbook(wb *internal.Workbook) []internal.Member {
	if wb == nil {
		return []internal.Member{}
	}

	byID := map[string]int{}
	members := make([]internal.Member, 0)

	for _, sheet := range wb.Sheets {
		rows := sheet.Rows
		if len(rows) < firstDataRow+1 {
			continue
		}

		for i := firstDataRow; i < len(rows); i++ {
			row := rows[i]
			rawName, ok := cellAt(row, colMemberName).(string)
			if !ok || strings.TrimSpace(rawName) == "" {
				continue
			}
			name := strings.TrimSpace(rawName)
			memberID := util.MemberID(name)

			idx, seen := byID[memberID]
			if !seen {
				members = append(members, newMember(memberID, name))
				idx = len(members) - 1
				byID[memberID] = idx
			}
			member := &members[idx]

			give := FormatItem(cellAt(row, colGivePerson), cellAt(row, colGiveDesignation), cellAt(row, colGiveCompany))
			member.Gives = util.AppendUnique(member.Gives, give)

			ask := FormatItem(cellAt(row, colAskPerson), cellAt(row, colAskDesignation), cellAt(row, colAskCompany))
			member.Asks = util.AppendUnique(member.Asks, ask)
		}
	}

	return members
}

// FormatItem renders the person/designation/company triple of a give or ask
// as "Person, Designation, at Company". Cells that are not non-blank strings
// are left out; an empty result means there is no item.
func FormatItem(person, designation, company any) string {
	parts := make([]string, 0, 3)
	if s, ok := nonBlank(person); ok {
		parts = append(parts, s)
	}
	if s, ok := nonBlank(designation); ok {
		parts = append(parts, s)
	}
	if s, ok := nonBlank(company); ok {
		parts = append(parts, "at "+s)
	}
	return strings.Join(parts, ", ")
}

func newMember(id, name string) internal.Member {
	return internal.Member{
		ID:        id,
		Name:      name,
		Company:   internal.DefaultCompany,
		Specialty: internal.DefaultSpecialty,
		Gives:     []string{},
		Asks:      []string{},
		Avatar:    util.AvatarURL(name),
	}
}

func nonBlank(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func cellAt(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

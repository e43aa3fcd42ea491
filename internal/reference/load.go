package reference

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"askgive/internal"
	"askgive/internal/util"
)

const defaultSpecialty = "Member"

var ErrUnsupportedFormat = errors.New("unsupported reference roster format")

type rosterFile struct {
	Chapter string            `yaml:"chapter"`
	Members []internal.Member `yaml:"members"`
}

// LoadFile reads a reference roster from a .yaml/.yml or .xlsx file.
func LoadFile(path, countryCode string) ([]internal.Member, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(blob, countryCode)
	case ".xlsx":
		return ParseXLSX(blob, countryCode)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseYAML accepts either a bare list of members or a document with a
// "members" key.
func ParseYAML(blob []byte, countryCode string) ([]internal.Member, error) {
	var doc rosterFile
	if err := yaml.Unmarshal(blob, &doc); err != nil || len(doc.Members) == 0 {
		var list []internal.Member
		if listErr := yaml.Unmarshal(blob, &list); listErr != nil {
			if err != nil {
				return nil, fmt.Errorf("parse reference yaml: %w", err)
			}
			return nil, fmt.Errorf("parse reference yaml: %w", listErr)
		}
		doc.Members = list
	}
	return finalize(doc.Members, countryCode), nil
}

// ParseXLSX reads the first sheet, locating columns by their header text.
func ParseXLSX(blob []byte, countryCode string) ([]internal.Member, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := make([]string, 0, len(rows[0]))
	for _, h := range rows[0] {
		headers = append(headers, strings.ToLower(strings.TrimSpace(h)))
	}
	nameIdx := findHeaderIndex(headers, []string{"member name", "name"})
	if nameIdx < 0 {
		return nil, fmt.Errorf("reference sheet %q has no name column", sheets[0])
	}
	companyIdx := findHeaderIndex(headers, []string{"company", "business"})
	specialtyIdx := findHeaderIndex(headers, []string{"specialty", "speciality", "category", "classification"})
	phoneIdx := findHeaderIndex(headers, []string{"phone", "mobile", "whatsapp", "contact"})
	roleIdx := findHeaderIndex(headers, []string{"role", "position"})
	emailIdx := findHeaderIndex(headers, []string{"email", "e-mail"})

	members := make([]internal.Member, 0, len(rows)-1)
	for _, row := range rows[1:] {
		members = append(members, internal.Member{
			Name:        pick(row, nameIdx),
			Company:     pick(row, companyIdx),
			Specialty:   pick(row, specialtyIdx),
			PhoneNumber: pick(row, phoneIdx),
			ChapterRole: pick(row, roleIdx),
			Email:       pick(row, emailIdx),
		})
	}
	return finalize(members, countryCode), nil
}

func finalize(in []internal.Member, countryCode string) []internal.Member {
	out := make([]internal.Member, 0, len(in))
	for _, m := range in {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		m.ID = util.MemberID(m.Name)
		m.Company = strings.TrimSpace(m.Company)
		if m.Company == "" {
			m.Company = internal.DefaultCompany
		}
		m.Specialty = strings.TrimSpace(m.Specialty)
		if m.Specialty == "" {
			m.Specialty = defaultSpecialty
		}
		m.PhoneNumber = util.NormalizePhone(m.PhoneNumber, countryCode)
		m.ChapterRole = strings.TrimSpace(m.ChapterRole)
		m.Email = strings.TrimSpace(m.Email)
		m.Gives = util.UniqueTrimmed(m.Gives)
		m.Asks = util.UniqueTrimmed(m.Asks)
		if m.Avatar == "" {
			m.Avatar = util.AvatarURL(m.Name)
		}
		out = append(out, m)
	}
	return out
}

func findHeaderIndex(headers []string, probes []string) int {
	for _, probe := range probes {
		for i, h := range headers {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pick(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

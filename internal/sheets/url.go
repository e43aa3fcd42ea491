package sheets

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidSheetURL = errors.New("invalid google sheet url")

var reSheetID = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)

const docsBaseURL = "https://docs.google.com/spreadsheets/d/"

func ParseSheetID(sheetURL string) (string, error) {
	m := reSheetID.FindStringSubmatch(strings.TrimSpace(sheetURL))
	if m == nil {
		return "", ErrInvalidSheetURL
	}
	return m[1], nil
}

func CSVExportURL(id string) string {
	return docsBaseURL + id + "/export?format=csv"
}

func HTMLExportURL(id string) string {
	return docsBaseURL + id + "/pubhtml"
}

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"askgive/internal"
)

// ReplaceMembers swaps the stored roster for members, keeping their order.
// Later duplicates of an id are ignored.
func (d *DB) ReplaceMembers(importID string, members []internal.Member) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM members`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM matches`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM match_runs`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO members (position, id, name, company, specialty, givesJson, asksJson, phone, avatar, email, chapterRole, importId)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range members {
		if _, err := stmt.Exec(
			i, m.ID, m.Name, m.Company, m.Specialty, encodeList(m.Gives), encodeList(m.Asks),
			m.PhoneNumber, m.Avatar, m.Email, m.ChapterRole, nullString(importID),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListMembers() ([]internal.Member, error) {
	rows, err := d.conn.Query(`
SELECT id, name, company, specialty, givesJson, asksJson, phone, avatar, email, chapterRole
FROM members ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) GetMember(id string) (internal.Member, error) {
	row := d.conn.QueryRow(`
SELECT id, name, company, specialty, givesJson, asksJson, phone, avatar, email, chapterRole
FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Member{}, ErrNotFound
	}
	return m, err
}

// SearchMembers filters the roster by a case-insensitive name substring and
// sorts the result by name.
func (d *DB) SearchMembers(query string) ([]internal.Member, error) {
	all, err := d.ListMembers()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]internal.Member, 0, len(all))
	for _, m := range all {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (d *DB) ReplaceReferenceMembers(members []internal.Member) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM reference_members`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO reference_members (position, id, name, company, specialty, givesJson, asksJson, phone, email, chapterRole)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range members {
		if _, err := stmt.Exec(
			i, m.ID, m.Name, m.Company, m.Specialty, encodeList(m.Gives), encodeList(m.Asks),
			m.PhoneNumber, m.Email, m.ChapterRole,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListReferenceMembers() ([]internal.Member, error) {
	rows, err := d.conn.Query(`
SELECT id, name, company, specialty, givesJson, asksJson, phone, '', email, chapterRole
FROM reference_members ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) InsertImport(row internal.ImportRow) error {
	cleaned := 0
	if row.Cleaned {
		cleaned = 1
	}
	_, err := d.conn.Exec(`INSERT INTO imports (id, source, origin, cleaned, memberCount) VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.Source, row.Origin, cleaned, row.MemberCount)
	return err
}

func (d *DB) ListImports(limit int) ([]internal.ImportRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`
SELECT id, source, origin, cleaned, memberCount, createdAt
FROM imports ORDER BY createdAt DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.ImportRow{}
	for rows.Next() {
		var row internal.ImportRow
		var cleaned int
		if err := rows.Scan(&row.ID, &row.Source, &row.Origin, &cleaned, &row.MemberCount, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Cleaned = cleaned != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) ReplaceMatches(memberID string, matches []internal.SmartMatch) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM matches WHERE memberId = ?`, memberID); err != nil {
		return err
	}
	for i, m := range matches {
		if _, err := tx.Exec(`
INSERT INTO matches (memberId, position, member, give, matchingAsk, score, reason, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, memberID, i, m.Member, m.Give, m.MatchingAsk, m.Score, m.Reason, string(m.Source)); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`
INSERT INTO match_runs (memberId) VALUES (?)
ON CONFLICT(memberId) DO UPDATE SET computedAt = CURRENT_TIMESTAMP
`, memberID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMatches returns the stored matches of a member: nil when they were never
// computed, an empty slice when the last computation found none.
func (d *DB) ListMatches(memberID string) ([]internal.SmartMatch, error) {
	var computed int
	err := d.conn.QueryRow(`SELECT COUNT(1) FROM match_runs WHERE memberId = ?`, memberID).Scan(&computed)
	if err != nil {
		return nil, err
	}
	if computed == 0 {
		return nil, nil
	}

	rows, err := d.conn.Query(`
SELECT member, give, matchingAsk, score, reason, source
FROM matches WHERE memberId = ? ORDER BY position ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.SmartMatch{}
	for rows.Next() {
		var m internal.SmartMatch
		var source string
		if err := rows.Scan(&m.Member, &m.Give, &m.MatchingAsk, &m.Score, &m.Reason, &source); err != nil {
			return nil, err
		}
		m.Source = internal.MatchSource(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(s rowScanner) (internal.Member, error) {
	var m internal.Member
	var givesJSON, asksJSON string
	if err := s.Scan(&m.ID, &m.Name, &m.Company, &m.Specialty, &givesJSON, &asksJSON, &m.PhoneNumber, &m.Avatar, &m.Email, &m.ChapterRole); err != nil {
		return internal.Member{}, err
	}
	m.Gives = decodeList(givesJSON)
	m.Asks = decodeList(asksJSON)
	return m, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	blob, _ := json.Marshal(items)
	return string(blob)
}

func decodeList(blob string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(blob), &out)
	if out == nil {
		out = []string{}
	}
	return out
}

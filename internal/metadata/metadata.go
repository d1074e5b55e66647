// Package metadata infers paper details from upload filenames such as
// "SEM5_CS501_2023.pdf" or "1750076423461_ESC501_SoftwareEngineering_2024.pdf".
package metadata

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultUniversity = "MAKAUT"
	DefaultPaperType  = "Regular"
)

// Paper describes the exam a set of questions came from.
type Paper struct {
	Semester    string `json:"semester" yaml:"semester"`
	SubjectCode string `json:"subject_code" yaml:"subject_code"`
	SubjectName string `json:"subject_name" yaml:"subject_name"`
	Year        int    `json:"year" yaml:"year"`
	University  string `json:"university" yaml:"university"`
	PaperType   string `json:"paper_type" yaml:"paper_type"`
}

var subjectPrefixes = []string{"ESC", "CSE", "ECE", "EE", "ME"}

// FromFilename infers metadata from name, defaulting the year to the
// current one.
func FromFilename(name string) Paper {
	return FromFilenameAt(name, time.Now())
}

// FromFilenameAt is FromFilename with an explicit clock.
func FromFilenameAt(name string, now time.Time) Paper {
	p := Paper{
		Year:       now.Year(),
		University: DefaultUniversity,
		PaperType:  DefaultPaperType,
	}
	base := filepath.Base(name)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	parts := strings.Split(base, "_")

	if len(parts) >= 3 && strings.HasPrefix(strings.ToUpper(parts[0]), "SEM") {
		p.Semester = parts[0]
		p.SubjectCode = parts[1]
	}
	for _, part := range parts {
		if len(part) == 4 && isDigits(part) {
			p.Year, _ = strconv.Atoi(part)
			break
		}
	}

	if strings.Contains(base, "ESC") || strings.Contains(base, "CSE") {
		for _, part := range parts {
			if hasAnyPrefix(part, subjectPrefixes) {
				p.SubjectCode = part
				break
			}
		}
		var words []string
		for _, part := range parts {
			if isDigits(part) || len(part) <= 3 || part == p.SubjectCode {
				continue
			}
			words = append(words, part)
		}
		p.SubjectName = strings.Join(words, " ")
	}
	return p
}

// Merge overlays the non-empty fields of override onto base.
func Merge(base, override Paper) Paper {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	out := Paper{
		Semester:    pick(base.Semester, override.Semester),
		SubjectCode: pick(base.SubjectCode, override.SubjectCode),
		SubjectName: pick(base.SubjectName, override.SubjectName),
		Year:        base.Year,
		University:  pick(base.University, override.University),
		PaperType:   pick(base.PaperType, override.PaperType),
	}
	if override.Year > 0 {
		out.Year = override.Year
	}
	return out
}

// Key identifies a paper for duplicate detection.
func (p Paper) Key() string {
	return p.Semester + "#" + p.SubjectCode + "#" + strconv.Itoa(p.Year)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

package policy

import (
	"strings"

	"dirsentry.org/internal/directory"
)

// Sensitive column categories. Columns are classified by case-insensitive
// substring match against the keyword set, so "work_email" and "Email" both
// land in the email category.
const (
	CategoryEmail      = "email"
	CategoryPhone      = "phone"
	CategoryEmployeeID = "employee_id"
)

type keywordSets map[string][]string

func defaultKeywords() keywordSets {
	return keywordSets{
		CategoryEmail:      {"email", "mail"},
		CategoryPhone:      {"phone", "telephone", "mobile"},
		CategoryEmployeeID: {"employee_id", "employeenumber", "workerid"},
	}
}

// classify returns the sensitive category of a column name, or "".
func (k keywordSets) classify(column string) string {
	lower := strings.ToLower(column)
	// employee_id keywords are the most specific; check them before email so
	// a column like "employee_id_mail_code" still lands where its primary
	// keyword points.
	for _, category := range []string{CategoryEmployeeID, CategoryEmail, CategoryPhone} {
		for _, kw := range k[category] {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}
	return ""
}

func maskIdentity(_ *Engine, d *directory.Dataset) *directory.Dataset {
	return d
}

// maskManager masks phone-number columns only; email and employee ids stay
// clear on the team view.
func maskManager(e *Engine, d *directory.Dataset) *directory.Dataset {
	return e.maskColumns(d, map[string]func(string) string{
		CategoryPhone: maskPhone,
	})
}

// maskFull masks every sensitive category.
func maskFull(e *Engine, d *directory.Dataset) *directory.Dataset {
	return e.maskColumns(d, map[string]func(string) string{
		CategoryEmail:      maskEmail,
		CategoryPhone:      maskPhone,
		CategoryEmployeeID: maskEmployeeID,
	})
}

func (e *Engine) maskColumns(d *directory.Dataset, rules map[string]func(string) string) *directory.Dataset {
	maskers := make([]func(string) string, len(d.Columns))
	any := false
	for i, col := range d.Columns {
		if fn, ok := rules[e.keywords.classify(col)]; ok {
			maskers[i] = fn
			any = true
		}
	}
	if !any {
		return d
	}
	out := d.Clone()
	for _, row := range out.Rows {
		for i, fn := range maskers {
			if fn != nil && row[i] != "" {
				row[i] = fn(row[i])
			}
		}
	}
	return out
}

// maskEmail keeps the first and last character of the local part and
// replaces the middle with asterisks. Local parts of two characters or fewer
// are fully masked. Values without an "@" pass through unchanged.
func maskEmail(v string) string {
	at := strings.LastIndex(v, "@")
	if at < 0 {
		return v
	}
	local, domain := v[:at], v[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + domain
}

// maskPhone keeps only the last four digits when the value carries at least
// ten; shorter values are replaced wholesale.
func maskPhone(v string) string {
	digits := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] >= '0' && v[i] <= '9' {
			digits = append(digits, v[i])
		}
	}
	if len(digits) < 10 {
		return "***-****"
	}
	return "***-***-" + string(digits[len(digits)-4:])
}

// maskEmployeeID keeps the first two and the last character. Identifiers of
// three characters or fewer are fully masked.
func maskEmployeeID(v string) string {
	if len(v) <= 3 {
		return strings.Repeat("*", len(v))
	}
	return v[:2] + strings.Repeat("*", len(v)-3) + v[len(v)-1:]
}

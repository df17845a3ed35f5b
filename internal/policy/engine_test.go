package policy

import (
	"strings"
	"testing"
	"time"

	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/directory"
)

func sampleDataset() *directory.Dataset {
	d := directory.New("uid", "name", "email", "phone_number", "employee_id", "manager", "department", "seniority_level")
	d.Append("alice", "Alice Ray", "alice.ray@corp.example", "+1 415 555 0100", "EMP10041", "", "Engineering", "Senior")
	d.Append("bob", "Bob Lin", "bob.lin@corp.example", "+1 415 555 0101", "EMP10042", "alice", "Engineering", "Mid")
	d.Append("carol", "Carol Wu", "carol.wu@corp.example", "+1 415 555 0102", "EMP10043", "bob", "Engineering", "Junior")
	d.Append("dave", "Dave Oh", "dave.oh@corp.example", "+1 415 555 0103", "EMP10044", "carol", "Engineering", "Junior")
	d.Append("erin", "Erin Fox", "erin.fox@corp.example", "+1 415 555 0104", "EMP10045", "", "Sales", "Senior")
	return d
}

func TestApplyAdminSeesEverythingUnmasked(t *testing.T) {
	e := NewEngine()
	src := sampleDataset()
	got := e.Apply(src, auth.RoleAdmin, PrincipalContext{Identifier: "alice"})
	if got.Len() != src.Len() {
		t.Fatalf("admin rows = %d, want %d", got.Len(), src.Len())
	}
	if got.Value(0, "email") != "alice.ray@corp.example" {
		t.Fatalf("admin email masked: %q", got.Value(0, "email"))
	}
	if got.Value(0, "employee_id") != "EMP10041" {
		t.Fatalf("admin employee_id masked: %q", got.Value(0, "employee_id"))
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	e := NewEngine()
	src := sampleDataset()
	before := src.Value(0, "email")
	e.Apply(src, auth.RoleViewer, PrincipalContext{})
	if src.Value(0, "email") != before {
		t.Fatalf("input dataset mutated")
	}
}

func TestApplyManagerTwoLevelClosure(t *testing.T) {
	e := NewEngine()
	got := e.Apply(sampleDataset(), auth.RoleManager, PrincipalContext{Identifier: "alice"})

	want := map[string]bool{"alice": true, "bob": true, "carol": true}
	if got.Len() != len(want) {
		t.Fatalf("manager rows = %d, want %d", got.Len(), len(want))
	}
	for i := 0; i < got.Len(); i++ {
		uid := got.Value(i, "uid")
		if !want[uid] {
			// dave reports to carol, two hops below alice, and must not appear.
			t.Fatalf("unexpected uid %q in manager view", uid)
		}
	}
	// Only phone is masked on the manager path; email and employee id stay
	// clear.
	if v := got.Value(0, "phone_number"); !strings.HasPrefix(v, "***-***-") {
		t.Fatalf("manager phone not masked: %q", v)
	}
	if v := got.Value(0, "email"); !strings.Contains(v, "@corp.example") || strings.Contains(v, "*") {
		t.Fatalf("manager email should be clear: %q", v)
	}
	if v := got.Value(0, "employee_id"); v != "EMP10041" {
		t.Fatalf("manager employee_id should be clear: %q", v)
	}
}

func TestApplyViewerAggregateShape(t *testing.T) {
	e := NewEngine()
	got := e.Apply(sampleDataset(), auth.RoleViewer, PrincipalContext{Identifier: "bob"})

	wantCols := []string{ColDepartment, ColTeamSize, ColCommonSeniority}
	if len(got.Columns) != len(wantCols) {
		t.Fatalf("viewer columns = %v, want %v", got.Columns, wantCols)
	}
	for i, c := range wantCols {
		if got.Columns[i] != c {
			t.Fatalf("viewer columns = %v, want %v", got.Columns, wantCols)
		}
	}
	if got.Len() != 2 {
		t.Fatalf("viewer rows = %d, want 2 departments", got.Len())
	}
	if got.Value(0, ColDepartment) != "Engineering" || got.Value(0, ColTeamSize) != "4" {
		t.Fatalf("engineering rollup = %q/%q", got.Value(0, ColDepartment), got.Value(0, ColTeamSize))
	}
	if got.Value(0, ColCommonSeniority) != "Junior" {
		t.Fatalf("modal seniority = %q, want Junior", got.Value(0, ColCommonSeniority))
	}
}

func TestApplyAuditorMatchesViewer(t *testing.T) {
	e := NewEngine()
	src := sampleDataset()
	viewer := e.Apply(src, auth.RoleViewer, PrincipalContext{})
	auditor := e.Apply(src, auth.RoleAuditor, PrincipalContext{})
	if viewer.Len() != auditor.Len() || len(viewer.Columns) != len(auditor.Columns) {
		t.Fatalf("auditor view diverges from viewer view")
	}
}

func TestApplyUnknownRoleSeesNothing(t *testing.T) {
	e := NewEngine()
	got := e.Apply(sampleDataset(), auth.Role("superuser"), PrincipalContext{})
	if got.Len() != 0 {
		t.Fatalf("unknown role rows = %d, want 0", got.Len())
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"john.smith@corp.example", "j********h@corp.example"},
		{"ab@x.com", "**@x.com"},
		{"a@x.com", "*@x.com"},
		{"abc@x.com", "a*c@x.com"},
		{"noatsign", "noatsign"},
	}
	for _, tc := range cases {
		if got := maskEmail(tc.in); got != tc.want {
			t.Errorf("maskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"+1 415 555 0100", "***-***-0100"},
		{"(415) 555-0100", "***-***-0100"},
		{"555-0100", "***-****"},
		{"x", "***-****"},
	}
	for _, tc := range cases {
		if got := maskPhone(tc.in); got != tc.want {
			t.Errorf("maskPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskEmployeeID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"EMP10041", "EM*****1"},
		{"E12", "***"},
		{"ab", "**"},
	}
	for _, tc := range cases {
		if got := maskEmployeeID(tc.in); got != tc.want {
			t.Errorf("maskEmployeeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyColumnsBySubstring(t *testing.T) {
	k := defaultKeywords()
	cases := []struct{ column, want string }{
		{"email", CategoryEmail},
		{"Work_Email", CategoryEmail},
		{"primaryMail", CategoryEmail},
		{"phone_number", CategoryPhone},
		{"mobilePhone", CategoryPhone},
		{"Telephone", CategoryPhone},
		{"employee_id", CategoryEmployeeID},
		{"employeeNumber", CategoryEmployeeID},
		{"workerId", CategoryEmployeeID},
		{"department", ""},
		{"name", ""},
	}
	for _, tc := range cases {
		if got := k.classify(tc.column); got != tc.want {
			t.Errorf("classify(%q) = %q, want %q", tc.column, got, tc.want)
		}
	}
}

func TestWithKeywordsOverride(t *testing.T) {
	e := NewEngine(WithKeywords(CategoryEmail, []string{"contact"}))
	if got := e.keywords.classify("contact_address"); got != CategoryEmail {
		t.Fatalf("override keyword ignored: classify = %q", got)
	}
	if got := e.keywords.classify("email"); got != "" {
		t.Fatalf("replaced keyword still matches: classify = %q", got)
	}
}

func TestSanitizeExportStripsCredentialColumns(t *testing.T) {
	e := NewEngine()
	d := directory.New("uid", "email", "password_hash", "session_key", "api_token")
	d.Append("alice", "alice.ray@corp.example", "xyz", "sk-1", "tok-1")

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	exp := e.SanitizeExport(d, auth.RoleAdmin, now)

	for _, col := range exp.Data.Columns {
		switch col {
		case "password_hash", "session_key", "api_token":
			t.Fatalf("credential column %q survived export", col)
		}
	}
	// Export masking follows the caller's tier: an admin export stays clear.
	if got := exp.Data.Value(0, "email"); got != "alice.ray@corp.example" {
		t.Fatalf("admin export email = %q", got)
	}
	if exp.Provenance.Role != "admin" || !exp.Provenance.ExportedAt.Equal(now) {
		t.Fatalf("provenance = %+v", exp.Provenance)
	}
	if exp.Provenance.Classification == "" {
		t.Fatalf("provenance missing classification")
	}
}

func TestSanitizeExportManagerMasksOnce(t *testing.T) {
	e := NewEngine()
	scoped := e.Scope(sampleDataset(), auth.RoleManager, PrincipalContext{Identifier: "alice"})

	// Scope leaves columns untouched; masking happens inside SanitizeExport.
	if got := scoped.Value(0, "phone_number"); got != "+1 415 555 0100" {
		t.Fatalf("scoped phone = %q", got)
	}

	exp := e.SanitizeExport(scoped, auth.RoleManager, time.Now())
	// The last four digits survive: the phone is masked a single time, and a
	// second pass would collapse it to ***-****.
	if got := exp.Data.Value(0, "phone_number"); got != "***-***-0100" {
		t.Fatalf("manager export phone = %q", got)
	}
	if got := exp.Data.Value(0, "email"); got != "alice.ray@corp.example" {
		t.Fatalf("manager export email = %q", got)
	}
	if got := exp.Data.Value(0, "employee_id"); got != "EMP10041" {
		t.Fatalf("manager export employee_id = %q", got)
	}
}

func TestCheckAccess(t *testing.T) {
	admin := auth.NewPrincipal("a", "A", auth.RoleAdmin)
	manager := auth.NewPrincipal("m", "M", auth.RoleManager)
	viewer := auth.NewPrincipal("v", "V", auth.RoleViewer)
	auditor := auth.NewPrincipal("u", "U", auth.RoleAuditor)

	cases := []struct {
		p        auth.Principal
		category string
		want     bool
	}{
		{admin, ResourcePeopleData, true},
		{admin, ResourceAuditLogs, true},
		{manager, ResourcePeopleData, true},
		{manager, ResourceExport, true},
		{manager, ResourceAuditLogs, false},
		{viewer, ResourcePeopleData, true},
		{viewer, ResourceExport, false},
		{auditor, ResourceAuditLogs, true},
		{auditor, ResourceExport, false},
		// Unknown categories fail closed: only view_all passes.
		{admin, "mystery_surface", true},
		{manager, "mystery_surface", false},
	}
	for _, tc := range cases {
		if got := CheckAccess(tc.p, tc.category); got != tc.want {
			t.Errorf("CheckAccess(%s, %s) = %v, want %v", tc.p.Role, tc.category, got, tc.want)
		}
	}
}

func TestSanitizeSearchTerm(t *testing.T) {
	cases := []struct{ in, want string }{
		{"smith", "smith"},
		{"  smith  ", "smith"},
		{`o'brien; drop`, "obrien drop"},
		{"(uid=*)", "uid="},
		{`<script>"x"</script>`, "scriptx/script"},
	}
	for _, tc := range cases {
		if got := SanitizeSearchTerm(tc.in); got != tc.want {
			t.Errorf("SanitizeSearchTerm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	long := strings.Repeat("a", 300)
	if got := SanitizeSearchTerm(long); len(got) != maxSearchTermLen {
		t.Errorf("long term not capped: len = %d", len(got))
	}
}

package intake

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hardgate/internal/fsutil"
	"github.com/hardgate/internal/taxonomy"
)

func sampleRows() [][]string {
	return [][]string{
		{"payments-api"},
		{},
		{"1", "What is the business criticality?", "High"},
		{"2", "Provide the git repo URL", "https://github.com/acme/payments-api.git"},
		{"3", "Is the component using Redis?", "Yes"},
		{"4", "Does this use Kafka?", "no"},
		{"5", "Which environment hosts it today?", "TAS"},
	}
}

func TestValidate_CompleteForm(t *testing.T) {
	d := Validate(sampleRows())

	assert.Equal(t, "payments-api", d.ComponentName)
	assert.Equal(t, "https://github.com/acme/payments-api.git", d.RepoURL)
	assert.True(t, d.Validation.GitRepoValid)
	assert.Equal(t, 2, d.Validation.MandatoryRows)
	assert.Empty(t, d.Validation.UnansweredMandatory)
	assert.True(t, d.Validation.IsValid)
	assert.True(t, d.Ready())

	want := map[string]taxonomy.ComponentDeclaration{
		"redis": {Question: "Is the component using Redis?", AnswerText: "yes", IsYes: true},
		"kafka": {Question: "Does this use Kafka?", AnswerText: "no", IsYes: false},
	}
	if diff := cmp.Diff(want, d.Validation.ComponentQuestions); diff != "" {
		t.Errorf("component questions mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_UnansweredMandatory(t *testing.T) {
	rows := sampleRows()
	rows[2] = []string{"1", "What is the business criticality?"}

	d := Validate(rows)
	assert.Equal(t, []string{"What is the business criticality?"}, d.Validation.UnansweredMandatory)
	assert.False(t, d.Validation.IsValid)
	assert.False(t, d.Ready())
}

func TestValidate_InvalidRepoURL(t *testing.T) {
	rows := sampleRows()
	rows[3] = []string{"2", "Provide the git repo URL", "https://example.com/acme/payments"}

	d := Validate(rows)
	assert.Equal(t, "https://example.com/acme/payments", d.RepoURL)
	assert.False(t, d.Validation.GitRepoValid)
	assert.False(t, d.Validation.IsValid)
}

func TestValidate_NoMandatoryRowsIsInvalid(t *testing.T) {
	d := Validate([][]string{
		{"payments-api"},
		{"Provide the git repo URL", "https://github.com/acme/payments-api"},
	})
	assert.Zero(t, d.Validation.MandatoryRows)
	assert.False(t, d.Validation.IsValid)
}

func TestValidate_SkipsHeaderRow(t *testing.T) {
	rows := append([][]string{{"#", "Question", "Answer"}}, sampleRows()...)
	d := Validate(rows)
	assert.True(t, d.Validation.HeaderSkipped)
	assert.Equal(t, "payments-api", d.ComponentName)
	assert.True(t, d.Validation.IsValid)
}

func TestValidate_BlankRepoAnswerIsNotMandatory(t *testing.T) {
	d := Validate([][]string{
		{"payments-api"},
		{"1", "What is the business criticality?", "High"},
		{"2", "Provide the git repo URL"},
		{"3", "Which environment hosts it today?", "TAS"},
	})
	assert.Empty(t, d.RepoURL)
	assert.Equal(t, 2, d.Validation.MandatoryRows)
	assert.Empty(t, d.Validation.UnansweredMandatory)
	assert.False(t, d.Validation.GitRepoValid)
	assert.False(t, d.Validation.IsValid)
}

func TestValidate_URLInsideKeywordCell(t *testing.T) {
	d := Validate([][]string{
		{"svc"},
		{"Git repo: git@gitlab.com:team/svc.git"},
	})
	assert.Equal(t, "git@gitlab.com:team/svc.git", d.RepoURL)
	assert.True(t, d.Validation.GitRepoValid)
}

func TestValidate_EmptySheet(t *testing.T) {
	d := Validate(nil)
	assert.Equal(t, UnknownComponent, d.ComponentName)
	assert.False(t, d.Validation.IsValid)
	assert.NotNil(t, d.Validation.ComponentQuestions)
}

func TestIsValidRepoURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com/user/repo", true},
		{"https://github.com/user/repo.git", true},
		{"http://gitlab.com/group-x/my_repo", true},
		{"https://token@bitbucket.org/team/repo.git", true},
		{"git@github.com:user/repo.git", true},
		{"git@bitbucket.org:user/repo", true},
		{"https://github.com/user", false},
		{"https://example.com/user/repo", false},
		{"ftp://github.com/user/repo", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidRepoURL(tt.url), tt.url)
	}
}

func TestIsYes(t *testing.T) {
	for _, s := range []string{"yes", "Y", " TRUE ", "1", "Yes."} {
		assert.True(t, IsYes(s), s)
	}
	for _, s := range []string{"no", "not yet", "maybe", "", "0"} {
		assert.False(t, IsYes(s), s)
	}
}

func TestProcess_XLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intake.xlsx")

	f := excelize.NewFile()
	for i, row := range sampleRows() {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &vals))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	d, err := Process(path, "")
	require.NoError(t, err)
	assert.Equal(t, "payments-api", d.ComponentName)
	assert.True(t, d.Validation.IsValid)

	saved, err := Save(d, dir)
	require.NoError(t, err)
	var got Descriptor
	ok, err := fsutil.ReadJSON(saved, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.RepoURL, got.RepoURL)
}

func TestProcess_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.csv")
	require.NoError(t, os.WriteFile(path, []byte("payments-api\n,Provide the git repo URL,https://github.com/acme/payments-api\n,Who owns it?,Team A\n"), 0644))

	d, err := Process(path, "")
	require.NoError(t, err)
	assert.Equal(t, "payments-api", d.ComponentName)
	assert.True(t, d.Validation.IsValid)
}

func TestProcess_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.xls")
	require.NoError(t, os.WriteFile(path, []byte("legacy"), 0644))

	d, err := Process(path, "")
	require.ErrorIs(t, err, ErrUnreadableWorkbook)
	assert.Equal(t, UnknownComponent, d.ComponentName)
	assert.NotEmpty(t, d.Error)
	assert.False(t, d.Ready())
}

func TestWorkbooks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xlsx", "a.csv", "~$a.xlsx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	got, err := Workbooks(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.xlsx")}, got)
}

package blackboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/taxonomy"
)

func TestApplyIntake_FillsRepoAndName(t *testing.T) {
	b := New("run-1")
	b.ApplyIntake(IntakeOutput{Descriptor: &intake.Descriptor{ComponentName: "payments", RepoURL: "https://github.com/a/b"}})
	assert.Equal(t, "https://github.com/a/b", b.RepoURL)
	assert.Equal(t, "payments", b.ProjectName)

	b = New("run-2")
	b.LocalDir = "/src"
	b.ApplyIntake(IntakeOutput{Descriptor: &intake.Descriptor{ComponentName: intake.UnknownComponent, RepoURL: "https://github.com/a/b"}})
	assert.Empty(t, b.RepoURL)
	assert.Empty(t, b.ProjectName)
}

func TestApplyAnalysis_EchoesDeclarations(t *testing.T) {
	b := New("run")
	b.ExcelValidation = &intake.Descriptor{Validation: intake.Validation{
		ComponentQuestions: map[string]taxonomy.ComponentDeclaration{"redis": {IsYes: true}},
	}}
	rec := taxonomy.NewRecord()
	b.ApplyAnalysis(AnalysisOutput{Record: rec})
	assert.True(t, b.CodeAnalysis.ExcelComponents["redis"].IsYes)
}

func TestHaltAndErrors(t *testing.T) {
	b := New("run")
	b.MarkDone("intake")
	b.AddError("analysis", errors.New("boom"))
	b.AddError("analysis", nil)
	b.RecordHalt("crawl")

	assert.Equal(t, "crawl", b.HaltedAt)
	assert.Equal(t, []string{"analysis: boom"}, b.Errors)
	assert.Equal(t, []string{"intake", "crawl: halted"}, b.Progress())
}

func TestComponentName(t *testing.T) {
	b := New("run")
	assert.Equal(t, intake.UnknownComponent, b.ComponentName())
	b.ProjectName = "repo"
	assert.Equal(t, "repo", b.ComponentName())
	b.ExcelValidation = &intake.Descriptor{ComponentName: "Payments API"}
	assert.Equal(t, "Payments API", b.ComponentName())
}

func TestSortedFiles(t *testing.T) {
	b := New("run")
	b.FilesData = map[string]string{"b.go": "", "a.go": ""}
	assert.Equal(t, []string{"a.go", "b.go"}, b.SortedFiles())
}

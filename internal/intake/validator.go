// Package intake reads the intake questionnaire and validates it.
package intake

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/fsutil"
	"github.com/hardgate/internal/taxonomy"
)

// UnknownComponent names a component whose workbook carries no name.
const UnknownComponent = "Unknown Component"

// ValidationFile is the name of the persisted descriptor.
const ValidationFile = "excel_validation.json"

// Validation is the result of checking the questionnaire rows.
type Validation struct {
	TotalRows           int                                      `json:"total_rows"`
	MandatoryRows       int                                      `json:"mandatory_fields"`
	GitRepoURL          string                                   `json:"git_repo_url"`
	GitRepoValid        bool                                     `json:"git_repo_valid"`
	IsValid             bool                                     `json:"is_valid"`
	UnansweredMandatory []string                                 `json:"unanswered_mandatory"`
	ComponentQuestions  map[string]taxonomy.ComponentDeclaration `json:"component_questions"`
	HeaderSkipped       bool                                     `json:"header_skipped,omitempty"`
}

// Descriptor describes the component an intake form is about.
type Descriptor struct {
	ComponentName string     `json:"component_name"`
	RepoURL       string     `json:"repo_url"`
	Validation    Validation `json:"validation"`
	Error         string     `json:"error,omitempty"`
}

// Ready reports whether the form names a repository and answers every
// mandatory question.
func (d *Descriptor) Ready() bool {
	return d != nil && d.Error == "" && d.RepoURL != "" && len(d.Validation.UnansweredMandatory) == 0
}

// Failed returns the descriptor recorded when the workbook could not be read.
func Failed(err error) *Descriptor {
	return &Descriptor{
		ComponentName: UnknownComponent,
		Validation: Validation{
			UnansweredMandatory: []string{"Error processing Excel file"},
			ComponentQuestions:  map[string]taxonomy.ComponentDeclaration{},
		},
		Error: err.Error(),
	}
}

var repoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:[\w-]+@)?(?:github|gitlab|bitbucket)\.(?:com|org)/[\w.-]+/[\w.-]+?(?:\.git)?$`),
	regexp.MustCompile(`^git@(?:github|gitlab|bitbucket)\.(?:com|org):[\w.-]+/[\w.-]+?(?:\.git)?$`),
}

// IsValidRepoURL reports whether url is a supported Git hosting URL.
func IsValidRepoURL(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	for _, p := range repoPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

var (
	urlInText      = regexp.MustCompile(`(https?://\S+|git@\S+)`)
	rowNumber      = regexp.MustCompile(`^\d+(\.\d+)*\.?$`)
	componentCues  = []string{"is the component using", "does this use", "are you using"}
	yesVocabulary  = map[string]bool{"yes": true, "y": true, "true": true, "1": true}
	headerKeywords = map[string]bool{
		"question": true, "questions": true, "answer": true, "answers": true, "response": true,
		"#": true, "no": true, "no.": true, "s.no": true, "s.no.": true, "sr": true, "sr.": true, "sr no": true,
		"id": true, "field": true, "value": true, "comments": true, "remarks": true, "details": true,
	}
)

func looksLikeURL(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "http") || strings.Contains(l, "git@")
}

func nonEmpty(row []string) []string {
	var cells []string
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// isHeaderRow reports whether every filled cell is a column heading.
func isHeaderRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !headerKeywords[strings.ToLower(c)] {
			return false
		}
	}
	return true
}

// questionAnswer picks the question and answer from the filled cells. Leading
// row numbers are not questions, and a later cell holding a URL wins the answer.
func questionAnswer(cells []string) (string, string) {
	var question, answer string
	for _, c := range cells {
		switch {
		case question == "":
			if rowNumber.MatchString(c) {
				continue
			}
			question = c
		case answer == "":
			answer = c
		case looksLikeURL(c) && !looksLikeURL(answer):
			answer = c
		}
	}
	return question, answer
}

// componentToken extracts the component named after "using" or "use".
func componentToken(question string) (string, bool) {
	lower := strings.ToLower(question)
	cued := false
	for _, cue := range componentCues {
		if strings.Contains(lower, cue) {
			cued = true
			break
		}
	}
	if !cued {
		return "", false
	}
	for _, marker := range []string{"using ", "use "} {
		if i := strings.Index(lower, marker); i >= 0 {
			token := lower[i+len(marker):]
			if q := strings.IndexByte(token, '?'); q >= 0 {
				token = token[:q]
			}
			if token = strings.TrimSpace(token); token != "" {
				return token, true
			}
		}
	}
	return "", false
}

// IsYes reports whether an answer belongs to the yes vocabulary.
func IsYes(answer string) bool {
	return yesVocabulary[strings.Trim(strings.ToLower(strings.TrimSpace(answer)), ".!")]
}

// Validate extracts the descriptor from questionnaire rows.
func Validate(rows [][]string) *Descriptor {
	d := &Descriptor{
		Validation: Validation{
			UnansweredMandatory: []string{},
			ComponentQuestions:  map[string]taxonomy.ComponentDeclaration{},
		},
	}
	v := &d.Validation

	nameRow, repoRow := -1, -1
	for i, row := range rows {
		cells := nonEmpty(row)
		if len(cells) == 0 {
			continue
		}
		if nameRow < 0 {
			if !v.HeaderSkipped && isHeaderRow(cells) {
				v.HeaderSkipped = true
				continue
			}
			nameRow = i
			d.ComponentName = cells[0]
		}
		if repoRow < 0 {
			if url, ok := repoURLFromRow(cells); ok {
				repoRow = i
				d.RepoURL = url
			}
		}
		if nameRow >= 0 && repoRow >= 0 {
			break
		}
	}
	if d.ComponentName == "" {
		d.ComponentName = UnknownComponent
	}
	v.GitRepoURL = d.RepoURL
	v.GitRepoValid = IsValidRepoURL(d.RepoURL)

	for i, row := range rows {
		cells := nonEmpty(row)
		if len(cells) == 0 || (v.HeaderSkipped && i < nameRow) {
			continue
		}
		question, answer := questionAnswer(cells)
		if question == "" {
			continue
		}
		v.TotalRows++

		if token, ok := componentToken(question); ok {
			v.ComponentQuestions[token] = taxonomy.ComponentDeclaration{
				Question:   question,
				AnswerText: strings.ToLower(answer),
				IsYes:      IsYes(answer),
			}
			continue
		}
		if i == nameRow || i == repoRow {
			continue
		}
		v.MandatoryRows++
		if answer == "" {
			v.UnansweredMandatory = append(v.UnansweredMandatory, question)
		}
	}

	v.IsValid = v.MandatoryRows > 0 && len(v.UnansweredMandatory) == 0 && v.GitRepoValid
	if len(v.UnansweredMandatory) > 0 {
		log.Warn().Int("unanswered", len(v.UnansweredMandatory)).Msg("Intake form is incomplete")
	}
	return d
}

// repoURLFromRow reports whether the row is the "git repo" row and returns the
// repository URL it carries, which may be empty.
func repoURLFromRow(cells []string) (string, bool) {
	keyword := -1
	for i, c := range cells {
		if strings.Contains(strings.ToLower(c), "git repo") {
			keyword = i
			break
		}
	}
	if keyword < 0 {
		return "", false
	}
	for i, c := range cells {
		if i != keyword && looksLikeURL(c) {
			return c, true
		}
	}
	if m := urlInText.FindString(cells[keyword]); m != "" {
		return strings.TrimRight(m, ".,;)"), true
	}
	return "", true
}

// Process reads path and validates its rows. Read failures produce a failed
// descriptor alongside the error.
func Process(path, sheet string) (*Descriptor, error) {
	rows, err := ReadRows(path, sheet)
	if err != nil {
		return Failed(err), err
	}
	d := Validate(rows)
	log.Debug().
		Str("component", d.ComponentName).
		Str("repo_url", d.RepoURL).
		Bool("valid", d.Validation.IsValid).
		Msg("Intake form processed")
	return d, nil
}

// Save writes the descriptor to <dir>/excel_validation.json.
func Save(d *Descriptor, dir string) (string, error) {
	path := filepath.Join(dir, ValidationFile)
	return path, fsutil.WriteJSONAtomic(path, d)
}

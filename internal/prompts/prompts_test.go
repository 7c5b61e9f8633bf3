package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaceholders_Options(t *testing.T) {
	body := "Intro {{VAR:title|default=\"(untitled)\"}} -- list {{VAR:list|join=\", \"}} -- policy {{VAR:policy|default='be kind\\nrespect'}}"
	phs := ParsePlaceholders(body)
	require.Len(t, phs, 3)

	assert.Equal(t, "title", phs[0].Name)
	def, ok := phs[0].Default()
	require.True(t, ok)
	assert.Equal(t, "(untitled)", def)

	assert.Equal(t, "list", phs[1].Name)
	assert.Equal(t, ", ", phs[1].Join())

	def, ok = phs[2].Default()
	require.True(t, ok)
	assert.Equal(t, "be kind\nrespect", def)
}

func TestRenderBody(t *testing.T) {
	body := "Hello {{VAR:name}}! Files:\n{{VAR:files|join=\", \"}}\nExtra: {{VAR:extra|default=\"none\"}}"
	out, err := renderBody("greeting", body, Vars{
		"name":  "hardgate",
		"files": []string{"a.go", "b.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello hardgate! Files:\na.go, b.go\nExtra: none", out)
}

func TestRenderBody_MissingVar(t *testing.T) {
	_, err := renderBody("greeting", "Hello {{VAR:name}}", Vars{})
	var missing *MissingVarError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "name", missing.Name)
}

func TestRenderBody_NonStringValues(t *testing.T) {
	out, err := renderBody("n", "count={{VAR:n}}", Vars{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, "count=42", out)
}

func TestTemplatesAreEmbedded(t *testing.T) {
	assert.Equal(t, []string{HardGateAnalysis, MigrationInsights, OCPAssessment}, Keys())

	_, err := Template("nope")
	require.ErrorIs(t, err, ErrUnknownPrompt)
}

func TestTemplatesRenderWithAllVariables(t *testing.T) {
	for _, key := range Keys() {
		t.Run(key, func(t *testing.T) {
			body, err := Template(key)
			require.NoError(t, err)

			vars := Vars{}
			for _, name := range Names(body) {
				vars[name] = "<" + name + ">"
			}
			out, err := Render(key, vars)
			require.NoError(t, err)
			assert.NotContains(t, out, "{{VAR:")
		})
	}
}

func TestHardGateTemplateWording(t *testing.T) {
	body, err := Template(HardGateAnalysis)
	require.NoError(t, err)
	assert.Contains(t, body, `analyze the codebase for a project called "{{VAR:project_name}}"`)
	assert.Contains(t, body, "Please provide your analysis in the following JSON format:")
	assert.Contains(t, body, `mark it as "no" in the component_analysis section`)
}

func TestOCPTemplateIsSystemThenUser(t *testing.T) {
	body, err := Template(OCPAssessment)
	require.NoError(t, err)
	assert.Regexp(t, `(?s)^\nSystem: You are an OpenShift migration intake assessment agent.*\n\nUser: Perform the OCP intake assessment`, body)
	assert.Contains(t, body, "DO NOT USE ANY JINJA2 TEMPLATE SYNTAX - only return final HTML with actual values.")
}

func TestInsightsTemplateSeparatesUserRequest(t *testing.T) {
	body, err := Template(MigrationInsights)
	require.NoError(t, err)
	assert.Contains(t, body, "\n\n=== USER REQUEST ===\nBased on the comprehensive code analysis")
}

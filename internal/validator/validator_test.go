package validator

import (
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workflow.Register(reg))
	return reg
}

func TestValidateDocument(t *testing.T) {
	reg := newRegistry(t)

	// 1. Scenario A: Valid Document
	valid, err := engine.ParseString(`
<workflow>
	<rule match="$.services[?(@.ready is not True)]">
		<set path="config">
			<map>
				<item name="size">small</item>
				<item name="tags"><list><text>a</text></list></item>
			</map>
		</set>
		<empty><set path="#none"><true/></set></empty>
	</rule>
	<rule match=":$.units[*]"><set path="seen"><true/></set></rule>
</workflow>`, "valid.xml")
	require.NoError(t, err)
	assert.Empty(t, ValidateDocument(valid, reg))

	// 2. Scenario B: Unknown Elements
	broken, err := engine.ParseString(`
<workflow>
	<rule match="$"><deploy/></rule>
	<rule match="$"><set path="x"><map><item name="a"><ghost/></item></map></set></rule>
</workflow>`, "broken.xml")
	require.NoError(t, err)
	findings := ValidateDocument(broken, reg)
	require.Len(t, findings, 2)
	assert.Equal(t, "workflow/rule/deploy", findings[0].Path)
	assert.Equal(t, "workflow/rule[2]/set/map/item/ghost", findings[1].Path)
	var unknown *domain.UnknownFunctionError
	require.ErrorAs(t, findings[1], &unknown)
	assert.Equal(t, "ghost", unknown.Name)
	assert.Contains(t, findings[0].Error(), "broken.xml")

	// 3. Scenario C: Bad Query
	badQuery, err := engine.ParseString(`<workflow><rule match="$[?(@.x ==]"/><rule/></workflow>`, "query.xml")
	require.NoError(t, err)
	findings = ValidateDocument(badQuery, reg)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.ErrorIs(t, f, domain.ErrInvalidValue)
	}
}

func TestValidateDocument_UnknownRoot(t *testing.T) {
	doc, err := engine.ParseString(`<pipeline/>`, "root.xml")
	require.NoError(t, err)
	findings := ValidateDocument(doc, newRegistry(t))
	require.Len(t, findings, 1)
	assert.Equal(t, "pipeline", findings[0].Path)
}

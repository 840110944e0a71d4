package botcontext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/markdave123-py/smartbot/internal/models"
)

func TestMaterialize_AutomaticIsIdentity(t *testing.T) {
	contents := []string{
		"Opening hours: 9-5.",
		"  leading and trailing spaces kept  \n",
		"unicode: héllo wörld ✓\n\nsecond paragraph",
	}
	for _, c := range contents {
		got := Materialize(models.ModeAutomatic, models.ContextSource{Content: c, FileName: "x.pdf"})
		assert.Equal(t, c, got)
	}
}

func TestMaterialize_AutomaticWithoutContent(t *testing.T) {
	assert.Empty(t, Materialize(models.ModeAutomatic, models.ContextSource{FileName: "lost.pdf"}))
}

func TestMaterialize_ManualScenario(t *testing.T) {
	src := models.ContextSource{
		Name:      "Acme",
		Employees: []models.Employee{{Name: "Jo", Role: "CEO"}},
		Products:  []models.Offering{},
		Services:  []models.Offering{},
	}

	out := Materialize(models.ModeManual, src)
	lines := strings.Split(out, "\n")

	assert.Contains(t, lines, "Organization Name: Acme")
	assert.Contains(t, lines, "- Jo: CEO")

	idx := indexOf(lines, "Products:")
	if assert.GreaterOrEqual(t, idx, 0) {
		assert.Equal(t, "", lines[idx+1], "Products header must have no entry lines")
		assert.Equal(t, "Services:", lines[idx+2])
	}
}

func TestMaterialize_ManualFullTemplate(t *testing.T) {
	src := models.ContextSource{
		Name:     "Acme",
		Website:  "https://acme.test",
		Industry: "Anvils",
		About:    "Makes anvils.",
		Employees: []models.Employee{
			{Name: "Jo", Role: "CEO"},
			{Name: "Sam", Role: "CTO"},
		},
		Products: []models.Offering{{Name: "Anvil", Details: "Heavy"}},
		Services: []models.Offering{{Name: "Delivery", Details: "By cliff"}},
	}

	want := "Organization Name: Acme\n" +
		"Website: https://acme.test\n" +
		"Industry: Anvils\n" +
		"About: Makes anvils.\n" +
		"\nEmployees:\n" +
		"- Jo: CEO\n" +
		"- Sam: CTO\n" +
		"\nProducts:\n" +
		"- Anvil: Heavy\n" +
		"\nServices:\n" +
		"- Delivery: By cliff\n"

	assert.Equal(t, want, Materialize(models.ModeManual, src))
}

func TestMaterialize_ManualIsDeterministic(t *testing.T) {
	src := models.ContextSource{
		Name:      "Acme",
		Employees: []models.Employee{{Name: "B"}, {Name: "A", Role: "x"}},
		Services:  []models.Offering{{Details: "no name"}},
	}
	first := Materialize(models.ModeManual, src)
	second := Materialize(models.ModeManual, src)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "- B: \n- A: x\n", "stored order is kept")
	assert.Contains(t, first, "- : no name\n", "missing subfields default to empty")
}

func TestMaterialize_NoUsableData(t *testing.T) {
	assert.Empty(t, Materialize(models.ModeManual, models.ContextSource{}))
	assert.Empty(t, Materialize(models.ModeManual, models.ContextSource{Name: "   "}))
	assert.Empty(t, Materialize("", models.ContextSource{Content: "orphan"}))
	assert.Empty(t, Materialize("hybrid", models.ContextSource{Name: "Acme"}))
}

func indexOf(lines []string, s string) int {
	for i, l := range lines {
		if l == s {
			return i
		}
	}
	return -1
}

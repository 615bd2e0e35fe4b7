package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.IsFirstName("Jan"))
	assert.True(t, c.IsFirstName("malgorzata"), "lookups fold diacritics")
	assert.True(t, c.IsSurname("Wiśniewska"))
	assert.False(t, c.IsSurname("JAN"))
}

func TestClassifyPair(t *testing.T) {
	c := Default()

	testCases := []struct {
		name     string
		t1, t2   string
		expected Name
	}{
		{"surname first", "KOWALSKI", "JAN", Name{First: "JAN", Last: "KOWALSKI"}},
		{"given name first", "ANNA", "NOWAK", Name{First: "ANNA", Last: "NOWAK"}},
		{"only given name known", "PIOTR", "XYZOWICZ", Name{First: "PIOTR", Last: "XYZOWICZ"}},
		{"only given name known second", "XYZOWICZ", "PIOTR", Name{First: "PIOTR", Last: "XYZOWICZ"}},
		{"only surname known", "QWERTY", "MAZUR", Name{First: "QWERTY", Last: "MAZUR"}},
		{"only surname known first", "MAZUR", "QWERTY", Name{First: "QWERTY", Last: "MAZUR"}},
		{"nothing known", "ABC", "DEF", Name{First: "DEF", Last: "ABC"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, c.ClassifyPair(tc.t1, tc.t2))
		})
	}
}

func TestClassifyMany(t *testing.T) {
	c := Default()

	assert.Equal(t, Name{}, c.ClassifyMany(nil))
	assert.Equal(t, Name{First: "JAN"}, c.ClassifyMany([]string{"JAN"}))
	assert.Equal(t, Name{Last: "NOWAK"}, c.ClassifyMany([]string{"NOWAK"}))
	assert.Equal(t, Name{First: "ANNA NOWAK", Last: "KOWALSKA"},
		c.ClassifyMany([]string{"KOWALSKA", "ANNA", "NOWAK"}))
	assert.Equal(t, Name{First: "JAN MARIA", Last: "KOWALSKI"},
		c.ClassifyMany([]string{"KOWALSKI", "JAN", "MARIA"}), "leftmost hit decides")
	assert.Equal(t, Name{First: "JAN", Last: "MARIA KOWALSKI"},
		c.ClassifyMany([]string{"JAN", "MARIA", "KOWALSKI"}))
	assert.Equal(t, Name{First: "ABC DEF", Last: "MAZUR"},
		c.ClassifyMany([]string{"ABC", "MAZUR", "DEF"}))
	assert.Equal(t, Name{First: "ABC", Last: "DEF GHI"},
		c.ClassifyMany([]string{"ABC", "DEF", "GHI"}))
}

func TestCollectiveSurname(t *testing.T) {
	c := Default()

	testCases := []struct {
		name     string
		input    []string
		expected string
	}{
		{"ski pair", []string{"KOWALSKI", "KOWALSKA"}, "KOWALSCY"},
		{"female first", []string{"KOWALSKA", "KOWALSKI"}, "KOWALSCY"},
		{"cki pair", []string{"NOWICKI", "NOWICKA"}, "NOWICCY"},
		{"dzki pair", []string{"ZAWADZKA", "ZAWADZKI"}, "ZAWADZCY"},
		{"diacritics kept", []string{"WIŚNIEWSKI", "WIŚNIEWSKA"}, "WIŚNIEWSCY"},
		{"lower case kept", []string{"kowalski", "kowalska"}, "kowalscy"},
		{"title case kept", []string{"Kowalski", "Kowalska"}, "Kowalscy"},
		{"irregular", []string{"BIAŁY", "BIAŁA"}, "BIALI"},
		{"irregular same form", []string{"KRÓL", "KRÓL"}, "KRÓLOWIE"},
		{"invariant", []string{"NOWAK", "NOWAK"}, "NOWAK"},
		{"invariant czyk", []string{"KOWALCZYK", "KOWALCZYK"}, "KOWALCZYK"},
		{"different families", []string{"KOWALSKI", "NOWAK"}, "KOWALSKI"},
		{"different bases", []string{"KOWALSKA", "ZIELIŃSKI"}, "KOWALSKA"},
		{"no pair", []string{"KOWALSKI", "KOWALSKI"}, "KOWALSKI"},
		{"compound", []string{"KOWALSKA-NOWAK", "KOWALSKI-NOWAK"}, "KOWALSCY-NOWAK"},
		{"compound mismatch", []string{"KOWALSKA-NOWAK", "KOWALSKI"}, "KOWALSKA-NOWAK"},
		{"single", []string{"KOWALSKI"}, ""},
		{"blank entries dropped", []string{"KOWALSKI", "  "}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, c.CollectiveSurname(tc.input))
		})
	}
}

func TestIsFemaleGivenName(t *testing.T) {
	c := Default()
	assert.True(t, c.IsFemaleGivenName("Anna"))
	assert.True(t, c.IsFemaleGivenName("Oliwia"))
	assert.False(t, c.IsFemaleGivenName("KUBA"))
	assert.False(t, c.IsFemaleGivenName("Barnaba"))
	assert.False(t, c.IsFemaleGivenName("JAN"))
	assert.False(t, c.IsFemaleGivenName(""))

	assert.Equal(t, GenderFemale, c.GivenNameGender("ANNA"))
	assert.Equal(t, GenderMale, c.GivenNameGender("KUBA"))
	assert.Equal(t, GenderUnknown, c.GivenNameGender("XYZ"))
}

func TestIsMaleFormSurname(t *testing.T) {
	c := Default()
	assert.True(t, c.IsMaleFormSurname("KOWALSKI"))
	assert.True(t, c.IsMaleFormSurname("Biały"))
	assert.False(t, c.IsMaleFormSurname("NOWAK"))
	assert.False(t, c.IsMaleFormSurname("KOWALSKA"))
}

func TestSplitHousehold(t *testing.T) {
	c := Default()

	h := c.SplitHousehold("JAN KOWALSKI, ANNA KOWALSKA")
	assert.Equal(t, Household{Name: Name{First: "JAN I ANNA", Last: "KOWALSCY"}, Persons: 2}, h)

	h = c.SplitHousehold("Jan i Anna Kowalscy")
	assert.Equal(t, Household{Name: Name{First: "Jan I Anna", Last: "Kowalscy"}, Persons: 2}, h)

	h = c.SplitHousehold("KOWALSKI JAN")
	assert.Equal(t, Household{Name: Name{First: "JAN", Last: "KOWALSKI"}, Persons: 1}, h)

	assert.Equal(t, Household{}, c.SplitHousehold("  "))
}

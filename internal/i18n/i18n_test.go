package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	langs := catalog.Languages()
	assert.Contains(t, langs, "en")
	assert.Contains(t, langs, "es")
	assert.Contains(t, langs, "it")
}

func TestCatalog_For_ExactMatch(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	loc := catalog.For("es")
	assert.Equal(t, "es", loc.Code())
	assert.Equal(t, "Elige una opción:", loc.T("menu.main"))
}

func TestCatalog_For_UnknownFallsBackToDefault(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	for _, code := range []string{"", "zz", "not-a-tag!!"} {
		loc := catalog.For(code)
		assert.Equal(t, DefaultLanguage, loc.Code(), "code %q", code)
		assert.Equal(t, "Choose an option:", loc.T("menu.main"))
	}
}

func TestCatalog_For_RegionalVariantMatches(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	// es-MX should resolve to the Spanish catalog, not the default
	loc := catalog.For("es-MX")
	assert.Equal(t, "es", loc.Code())
}

func TestLocalizer_MissingKeyFallsBack(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	loc := catalog.For("es")
	assert.Equal(t, "no-such-key", loc.T("no-such-key"))
}

func TestLocalizer_Tf(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	loc := catalog.For("en")
	got := loc.Tf("weather.current_report", "Paris,FR", "18C, clear")
	assert.Contains(t, got, "Paris,FR")
	assert.Contains(t, got, "18C, clear")
}

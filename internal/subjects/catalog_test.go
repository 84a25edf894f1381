package subjects

import (
	"testing"

	"subject-choices/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, 60, catalog.Len(model.YearGroupS3))
	assert.Equal(t, 151, catalog.Len(model.YearGroupS4))
	assert.Equal(t, 0, catalog.Len(model.YearGroupS56))
	assert.Len(t, catalog.Entries(model.YearGroupS4), 151)
}

func TestCatalogLookupIgnoresCase(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	name, ok := catalog.Lookup(model.YearGroupS4, "METALWORK (NAT4)")
	require.True(t, ok)
	assert.Equal(t, "Metalwork (NAT4)", name)

	_, ok = catalog.Lookup(model.YearGroupS4, "Underwater Basket Weaving")
	assert.False(t, ok)
}

func TestLoadCatalogRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		seed string
		want string
	}{
		{
			name: "conflicting",
			seed: `
year_groups:
  S3:
    - raw: "Art"
      canonical: "Art"
    - raw: "ART"
      canonical: "Art & Design"
`,
			want: "conflicting duplicate key",
		},
		{
			name: "redundant",
			seed: `
year_groups:
  S4:
    - raw: "Music"
      canonical: "Music"
    - raw: "music"
      canonical: "Music"
`,
			want: "redundant duplicate key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog([]byte(tt.seed))
			require.Error(t, err)

			var dup DuplicateKeyError
			require.ErrorAs(t, err, &dup)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalogRejectsUnknownYearGroup(t *testing.T) {
	_, err := LoadCatalog([]byte("year_groups:\n  S9:\n    - raw: a\n      canonical: b\n"))
	require.Error(t, err)
}

func TestCatalogEntriesIsCopy(t *testing.T) {
	catalog, err := LoadCatalog([]byte("year_groups:\n  S3:\n    - raw: a\n      canonical: b\n"))
	require.NoError(t, err)

	entries := catalog.Entries(model.YearGroupS3)
	entries[0].Canonical = "changed"

	name, ok := catalog.Lookup(model.YearGroupS3, "A")
	require.True(t, ok)
	assert.Equal(t, "b", name)
	assert.Equal(t, "b", catalog.Entries(model.YearGroupS3)[0].Canonical)
}

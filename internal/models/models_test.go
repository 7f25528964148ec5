package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFullName(t *testing.T) {
	owner, name, err := Repository{FullName: "acme/widgets"}.SplitFullName()
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)

	for _, malformed := range []string{"", "widgets", "acme/", "/widgets", "a/b/c"} {
		_, _, err := Repository{FullName: malformed}.SplitFullName()
		assert.Error(t, err, "full name %q", malformed)
	}
}

func TestOrganizationLogin(t *testing.T) {
	assert.Equal(t, "acme", Organization{UserName: "acme", Name: "Acme Inc"}.Login())
	assert.Equal(t, "Acme Inc", Organization{Name: "Acme Inc"}.Login())
	assert.Equal(t, "", Organization{}.Login())
}

func TestRepositoryPathPrefersEmbeddedReference(t *testing.T) {
	pr := PullRequest{
		HTMLURL: "https://git.example.com/other/place/pulls/9",
		Base:    PRBranch{Repo: &Repository{FullName: "acme/widgets"}},
	}
	owner, name, ok := pr.RepositoryPath()
	require.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)
}

func TestRepositoryPathUsesHeadWhenBaseMissing(t *testing.T) {
	pr := PullRequest{
		Head: PRBranch{Repo: &Repository{FullName: "fork/widgets"}},
	}
	owner, name, ok := pr.RepositoryPath()
	require.True(t, ok)
	assert.Equal(t, "fork", owner)
	assert.Equal(t, "widgets", name)
}

func TestRepositoryPathFallsBackToURL(t *testing.T) {
	pr := PullRequest{HTMLURL: "https://git.example.com/acme/widgets/pulls/42"}
	owner, name, ok := pr.RepositoryPath()
	require.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)
}

func TestRepositoryPathUnresolvable(t *testing.T) {
	cases := []PullRequest{
		{},
		{HTMLURL: "https://git.example.com/acme/widgets/issues/42"},
		{HTMLURL: "https://git.example.com/acme"},
		{HTMLURL: "://not-a-url"},
		{Base: PRBranch{Repo: &Repository{FullName: "malformed"}}},
	}
	for _, pr := range cases {
		_, _, ok := pr.RepositoryPath()
		assert.False(t, ok, "url %q", pr.HTMLURL)
	}
}

func TestParseCombinedStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, ParseCombinedStatus("success"))
	assert.Equal(t, StatusFailure, ParseCombinedStatus("failure"))
	assert.Equal(t, StatusPending, ParseCombinedStatus("pending"))
	assert.Equal(t, StatusError, ParseCombinedStatus("error"))
	assert.Equal(t, StatusUnknown, ParseCombinedStatus(""))
	assert.Equal(t, StatusUnknown, ParseCombinedStatus("skipped"))
}

package manifest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goversion "github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `<?xml version="1.0" encoding="utf-8"?>
<TakeControlRanges>
  <Range Name="legacy" Minimum="12.0.0.0" Maximum="2021.1.0.0">
    <File Type="MSPA4NCentral" URI="https://cdn.example.com/tc/MSPA4NCentral-6.80.exe"/>
    <File Type="Viewer" URI="https://cdn.example.com/tc/viewer-6.80.exe"/>
  </Range>
  <Range Name="current" Minimum="2021.1.0.0" Maximum="2099.1.0.0">
    <File Type="MSPA4NCentral" URI=" https://cdn.example.com/tc/MSPA4NCentral-7.00.exe "/>
  </Range>
</TakeControlRanges>`

func mustVersion(t *testing.T, s string) *goversion.Version {
	t.Helper()
	v, err := goversion.NewVersion(s)
	require.NoError(t, err)
	return v
}

func singleRange(min, max string) []byte {
	return []byte(fmt.Sprintf(`<TakeControlRanges>
  <Range Name="only" Minimum="%s" Maximum="%s">
    <File Type="MSPA4NCentral" URI="https://cdn.example.com/tc.exe"/>
    <File Type="Other" URI="https://cdn.example.com/other.exe"/>
  </Range>
</TakeControlRanges>`, min, max))
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, m.Ranges, 2)
	assert.Equal(t, "legacy", m.Ranges[0].Name)
	assert.Equal(t, "https://cdn.example.com/tc/MSPA4NCentral-7.00.exe", m.Ranges[1].Installers["MSPA4NCentral"])
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not xml":     "this is not xml",
		"no ranges":   "<TakeControlRanges></TakeControlRanges>",
		"bad minimum": `<TakeControlRanges><Range Minimum="abc" Maximum="2.0"/></TakeControlRanges>`,
		"bad maximum": `<TakeControlRanges><Range Minimum="1.0" Maximum=""/></TakeControlRanges>`,
		"wrong root":  `<Other><Range Minimum="1.0" Maximum="2.0"/></Other>`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestResolveInsideRangeReturnsTypedInstaller(t *testing.T) {
	triples := [][3]string{
		{"1.0", "1.5", "2.0"},
		{"2023.1.0.0", "2023.1.0.1", "2023.1.0.2"},
		{"12.3.0.0", "2021.9.0.200", "2099.0.0.0"},
		{"0.0.1", "0.0.2", "0.1"},
	}
	for _, tr := range triples {
		m, err := Parse(singleRange(tr[0], tr[2]))
		require.NoError(t, err)

		r, uri, err := m.Resolve(mustVersion(t, tr[1]), "MSPA4NCentral")
		require.NoError(t, err, "triple %v", tr)
		assert.Equal(t, "only", r.Name)
		assert.Equal(t, "https://cdn.example.com/tc.exe", uri)
	}
}

func TestResolveBoundsAreExclusive(t *testing.T) {
	m, err := Parse(singleRange("2021.1.0.0", "2023.1.0.0"))
	require.NoError(t, err)

	for _, v := range []string{"2021.1.0.0", "2023.1.0.0", "2020.9.9.9", "2023.1.0.1", "2021.1"} {
		_, _, err := m.Resolve(mustVersion(t, v), "MSPA4NCentral")
		assert.ErrorIs(t, err, ErrNoCompatibleVersion, "version %s", v)
	}
}

func TestResolveOverlapIsAmbiguous(t *testing.T) {
	doc := `<TakeControlRanges>
  <Range Name="a" Minimum="1.0" Maximum="3.0"><File Type="MSPA4NCentral" URI="https://a"/></Range>
  <Range Name="b" Minimum="2.0" Maximum="4.0"><File Type="MSPA4NCentral" URI="https://b"/></Range>
</TakeControlRanges>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	_, _, err = m.Resolve(mustVersion(t, "2.5"), "MSPA4NCentral")
	assert.ErrorIs(t, err, ErrAmbiguousVersionRange)

	// Outside the overlap each range resolves on its own.
	_, uri, err := m.Resolve(mustVersion(t, "1.5"), "MSPA4NCentral")
	require.NoError(t, err)
	assert.Equal(t, "https://a", uri)
	_, uri, err = m.Resolve(mustVersion(t, "3.5"), "MSPA4NCentral")
	require.NoError(t, err)
	assert.Equal(t, "https://b", uri)
}

func TestResolveMissingType(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	_, _, err = m.Resolve(mustVersion(t, "2023.1.0.0"), "Viewer")
	assert.ErrorIs(t, err, ErrInstallerTypeMissing)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sampleManifest)
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), URL: srv.URL + "/ranges.xml"}
	m, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.Ranges, 2)
}

func TestFetchNon2xxIsFatal(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), URL: srv.URL}
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchUnparseableIsFatal(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), URL: srv.URL}
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchRequiresHTTPS(t *testing.T) {
	c := &Client{URL: "http://cdn.example.com/ranges.xml"}
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}

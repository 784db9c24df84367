// pkg/manifest/manifest.go - Take Control version-range manifest.
//
// The vendor publishes an XML document that maps agent version intervals to
// compatible Take Control installers:
//
//	<TakeControlRanges>
//	  <Range Name="2023.x" Minimum="2023.1.0.0" Maximum="2024.1.0.0">
//	    <File Type="MSPA4NCentral" URI="https://.../MSPA4NCentral-7.00.30.exe"/>
//	  </Range>
//	</TakeControlRanges>
//
// Bounds are exclusive. Exactly one range may contain the agent version; an
// overlap is reported as ErrAmbiguousVersionRange instead of picking one.

package manifest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/version"
)

var (
	ErrNoCompatibleVersion   = errors.New("no compatible version range")
	ErrAmbiguousVersionRange = errors.New("multiple version ranges match")
	ErrInstallerTypeMissing  = errors.New("matching range has no installer of the requested type")
)

// maxManifestBytes bounds how much of the response body is read.
const maxManifestBytes = 4 << 20

// VersionRange is one manifest entry. It is immutable once parsed.
type VersionRange struct {
	Name       string
	Minimum    *goversion.Version
	Maximum    *goversion.Version
	Installers map[string]string // installer type tag -> URI
}

// Contains reports whether minimum < v < maximum.
func (r VersionRange) Contains(v *goversion.Version) bool {
	return r.Minimum.LessThan(v) && v.LessThan(r.Maximum)
}

func (r VersionRange) String() string {
	return fmt.Sprintf("%s (%s, %s)", r.Name, r.Minimum.Original(), r.Maximum.Original())
}

// Manifest is the parsed range list.
type Manifest struct {
	Ranges []VersionRange
}

type xmlManifest struct {
	XMLName xml.Name   `xml:"TakeControlRanges"`
	Ranges  []xmlRange `xml:"Range"`
}

type xmlRange struct {
	Name    string    `xml:"Name,attr"`
	Minimum string    `xml:"Minimum,attr"`
	Maximum string    `xml:"Maximum,attr"`
	Files   []xmlFile `xml:"File"`
}

type xmlFile struct {
	Type string `xml:"Type,attr"`
	URI  string `xml:"URI,attr"`
}

// Parse decodes a manifest document. Any malformed bound fails the whole
// document rather than silently dropping a range.
func Parse(data []byte) (*Manifest, error) {
	var doc xmlManifest
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse version manifest: %w", err)
	}
	if len(doc.Ranges) == 0 {
		return nil, fmt.Errorf("version manifest contains no ranges")
	}

	m := &Manifest{Ranges: make([]VersionRange, 0, len(doc.Ranges))}
	for i, xr := range doc.Ranges {
		name := xr.Name
		if name == "" {
			name = fmt.Sprintf("range[%d]", i)
		}
		minV, err := version.Parse(xr.Minimum)
		if err != nil {
			return nil, fmt.Errorf("range %s minimum: %w", name, err)
		}
		maxV, err := version.Parse(xr.Maximum)
		if err != nil {
			return nil, fmt.Errorf("range %s maximum: %w", name, err)
		}
		r := VersionRange{
			Name:       name,
			Minimum:    minV,
			Maximum:    maxV,
			Installers: make(map[string]string, len(xr.Files)),
		}
		for _, f := range xr.Files {
			if f.Type == "" || f.URI == "" {
				continue
			}
			r.Installers[f.Type] = strings.TrimSpace(f.URI)
		}
		m.Ranges = append(m.Ranges, r)
	}
	return m, nil
}

// Match returns the single range that contains v.
func (m *Manifest) Match(v *goversion.Version) (VersionRange, error) {
	var matches []VersionRange
	for _, r := range m.Ranges {
		if r.Contains(v) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return VersionRange{}, fmt.Errorf("agent version %s: %w", v.Original(), ErrNoCompatibleVersion)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, r := range matches {
			names[i] = r.String()
		}
		return VersionRange{}, fmt.Errorf("agent version %s matches %s: %w",
			v.Original(), strings.Join(names, ", "), ErrAmbiguousVersionRange)
	}
}

// Resolve finds the range containing v and returns the URI of the installer
// tagged installerType within it.
func (m *Manifest) Resolve(v *goversion.Version, installerType string) (VersionRange, string, error) {
	r, err := m.Match(v)
	if err != nil {
		return VersionRange{}, "", err
	}
	uri, ok := r.Installers[installerType]
	if !ok {
		return r, "", fmt.Errorf("range %s, type %q: %w", r.String(), installerType, ErrInstallerTypeMissing)
	}
	return r, uri, nil
}

// Client fetches the manifest over HTTPS.
type Client struct {
	HTTP *http.Client
	URL  string
}

// Fetch downloads and parses the manifest. A non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context) (*Manifest, error) {
	if !strings.HasPrefix(strings.ToLower(c.URL), "https://") {
		return nil, fmt.Errorf("version manifest URL must use https: %q", c.URL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare manifest request: %w", err)
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	logging.Info("Fetching version manifest", "url", c.URL)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch version manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected HTTP status code fetching version manifest: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read version manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logging.Debug("Parsed version manifest", "ranges", len(m.Ranges))
	return m, nil
}

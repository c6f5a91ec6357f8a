package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
)

const versionPlaceholder = "{version}"

// Source produces a fresh manifest on every call.
type Source interface {
	Fetch(ctx context.Context) (*model.Manifest, error)
}

// HTTPSource reads the release pointer document, then the manifest of
// that release. With an empty pointer URL the template is fetched as is
// and the version is taken from the manifest itself.
type HTTPSource struct {
	client      *http.Client
	pointerURL  string
	urlTemplate string
	storageRoot string
}

func NewHTTPSource(client *http.Client, pointerURL, urlTemplate, storageRoot string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		client:      client,
		pointerURL:  strings.TrimSpace(pointerURL),
		urlTemplate: strings.TrimSpace(urlTemplate),
		storageRoot: strings.TrimRight(storageRoot, "/"),
	}
}

type pointerDoc struct {
	ReleaseVersion string `json:"release_version"`
}

type manifestDoc struct {
	ReleaseVersion string          `json:"release_version"`
	Types          json.RawMessage `json:"types"`
}

type fileDoc struct {
	BBox []float64 `json:"bbox"`
	Path string    `json:"path"`
}

func (s *HTTPSource) Fetch(ctx context.Context) (*model.Manifest, error) {
	version := ""
	if s.pointerURL != "" {
		b, err := s.get(ctx, s.pointerURL)
		if err != nil {
			return nil, err
		}
		var p pointerDoc
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("%w: pointer document: %w", ErrMalformed, err)
		}
		version = strings.TrimSpace(p.ReleaseVersion)
		if version == "" {
			return nil, fmt.Errorf("%w: pointer document has no release_version", ErrMalformed)
		}
	}

	u := s.urlTemplate
	if version != "" {
		u = strings.ReplaceAll(u, versionPlaceholder, version)
	}
	b, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	return Decode(b, version, s.storageRoot)
}

// Decode normalizes a manifest document. fallbackVersion is used when the
// document does not name its release.
func Decode(b []byte, fallbackVersion, storageRoot string) (*model.Manifest, error) {
	var doc manifestDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	version := strings.TrimSpace(doc.ReleaseVersion)
	if version == "" {
		version = fallbackVersion
	}
	if version == "" {
		return nil, fmt.Errorf("%w: no release_version", ErrMalformed)
	}
	if len(doc.Types) == 0 {
		return nil, fmt.Errorf("%w: missing types", ErrMalformed)
	}
	parts, declared, err := decodeTypes(doc.Types)
	if err != nil {
		return nil, err
	}
	return model.NewManifest(version, strings.TrimRight(storageRoot, "/")+"/"+version, parts, declared...), nil
}

// decodeTypes walks the types object token by token so partitions keep
// document order across types.
func decodeTypes(raw json.RawMessage) ([]model.PartitionRecord, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: types: %w", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("%w: types must be an object", ErrMalformed)
	}

	var (
		out      []model.PartitionRecord
		declared []string
	)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: types: %w", ErrMalformed, err)
		}
		typ, _ := kt.(string)
		declared = append(declared, typ)

		var files []fileDoc
		if err := dec.Decode(&files); err != nil {
			return nil, nil, fmt.Errorf("%w: type %q: %w", ErrMalformed, typ, err)
		}
		for i, f := range files {
			if len(f.BBox) != 4 {
				return nil, nil, fmt.Errorf("%w: type %q file %d: bbox has %d values", ErrMalformed, typ, i, len(f.BBox))
			}
			if strings.TrimSpace(f.Path) == "" {
				return nil, nil, fmt.Errorf("%w: type %q file %d: empty path", ErrMalformed, typ, i)
			}
			out = append(out, model.PartitionRecord{
				Type: typ,
				BBox: model.BBox{MinX: f.BBox[0], MinY: f.BBox[1], MaxX: f.BBox[2], MaxY: f.BBox[3]},
				Path: f.Path,
			})
		}
	}
	return out, declared, nil
}

func (s *HTTPSource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, u, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("manifest_http", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("%w: get %s: status %d: %s", ErrUnavailable, u, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, u, err)
	}
	return b, nil
}

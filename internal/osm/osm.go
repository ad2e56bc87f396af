// Package osm queries OpenStreetMap for existing map entries and builds the
// edit links and tags reviewers need to publish a verified merchant.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joescharf/btcmap-triage/internal/geo"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// Endpoints.
const (
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"
	siteURL            = "https://www.openstreetmap.org"
)

// Defaults for the provider.
const (
	DefaultSearchRadius = 50.0 // meters around the submitted point
	DefaultMatchRadius  = 25.0 // meters within which coordinates "match"
)

// BitcoinTags are the tag keys that mark Bitcoin acceptance.
var BitcoinTags = []string{"currency:XBT", "payment:bitcoin", "payment:lightning", "payment:onchain"}

// Element is one Overpass result.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
	Tags map[string]string `json:"tags"`
}

// Point returns the element position; ways use their center.
func (e Element) Point() models.Coordinates {
	if e.Center != nil {
		return models.Coordinates{Lat: e.Center.Lat, Lon: e.Center.Lon}
	}
	return models.Coordinates{Lat: e.Lat, Lon: e.Lon}
}

// HasBitcoinTag reports whether any Bitcoin acceptance tag is set to yes.
func (e Element) HasBitcoinTag() bool {
	for _, k := range BitcoinTags {
		if strings.EqualFold(e.Tags[k], "yes") {
			return true
		}
	}
	return false
}

// Ref is the "node/123" form used in OSM URLs.
func (e Element) Ref() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// Client queries an Overpass endpoint. Requests are rate limited because
// public Overpass instances throttle aggressively.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a client allowing one request per interval (0 disables limiting).
func NewClient(endpoint string, interval time.Duration, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{endpoint: endpoint, http: httpClient, limiter: rate.NewLimiter(limit, 1)}
}

// AroundQuery builds the Overpass QL for named features within radius meters.
func AroundQuery(p models.Coordinates, radius float64) string {
	around := fmt.Sprintf("(around:%.0f,%.7f,%.7f)", radius, p.Lat, p.Lon)
	return "[out:json][timeout:25];(" +
		`node["name"]` + around + ";" +
		`way["name"]` + around + ";" +
		");out center tags;"
}

// Search returns named features near p.
func (c *Client) Search(ctx context.Context, p models.Coordinates, radius float64) ([]Element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{"data": {AroundQuery(p, radius)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Elements []Element `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	return out.Elements, nil
}

// Searcher finds named map features near a point.
type Searcher interface {
	Search(ctx context.Context, p models.Coordinates, radius float64) ([]Element, error)
}

// Provider is the OSM evidence provider.
type Provider struct {
	search       Searcher
	searchRadius float64
	matchRadius  float64
}

// NewProvider wraps a searcher. Zero radii use the defaults.
func NewProvider(s Searcher, searchRadius, matchRadius float64) *Provider {
	if searchRadius <= 0 {
		searchRadius = DefaultSearchRadius
	}
	if matchRadius <= 0 {
		matchRadius = DefaultMatchRadius
	}
	return &Provider{search: s, searchRadius: searchRadius, matchRadius: matchRadius}
}

func (p *Provider) Category() models.Category { return models.CategoryOSM }

// Check looks for a same-named feature near the submitted point.
func (p *Provider) Check(ctx context.Context, sub models.Submission) (models.Evidence, error) {
	if sub.Location == nil {
		return models.MissingEvidence(models.CategoryOSM, "no coordinates"), nil
	}
	elements, err := p.search.Search(ctx, *sub.Location, p.searchRadius)
	if err != nil {
		return models.Evidence{}, err
	}

	best, ok := bestMatch(elements, sub)
	if !ok {
		return models.Evidence{
			Category: models.CategoryOSM,
			Status:   models.EvidenceOK,
			OSM:      &models.OSMEvidence{},
			Note:     fmt.Sprintf("%d named features nearby, none match", len(elements)),
		}, nil
	}
	dist := geo.DistanceMeters(best.Point(), *sub.Location)
	return models.Evidence{
		Category: models.CategoryOSM,
		Status:   models.EvidenceOK,
		OSM: &models.OSMEvidence{
			Exists:           true,
			NameMatches:      true,
			CoordinatesMatch: dist <= p.matchRadius,
			HasBitcoinTag:    best.HasBitcoinTag(),
			ElementID:        best.Ref(),
		},
		Note: fmt.Sprintf("%s is %.0f m away", best.Ref(), dist),
	}, nil
}

// bestMatch picks the closest same-named element.
func bestMatch(elements []Element, sub models.Submission) (Element, bool) {
	var best Element
	bestDist := -1.0
	for _, e := range elements {
		if !geo.SameName(e.Tags["name"], sub.MerchantName) {
			continue
		}
		d := geo.DistanceMeters(e.Point(), *sub.Location)
		if bestDist < 0 || d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, bestDist >= 0
}

var _ triage.EvidenceProvider = (*Provider)(nil)

package models

// Category is one of the five fixed verification dimensions.
type Category string

const (
	CategoryOSM         Category = "osm"
	CategoryWebsite     Category = "website"
	CategorySocial      Category = "social"
	CategoryCrossRef    Category = "crossref"
	CategoryConsistency Category = "consistency"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryOSM,
	CategoryWebsite,
	CategorySocial,
	CategoryCrossRef,
	CategoryConsistency,
}

// Label returns a human-readable name for the category.
func (c Category) Label() string {
	switch c {
	case CategoryOSM:
		return "OSM Verification"
	case CategoryWebsite:
		return "Website Check"
	case CategorySocial:
		return "Social Media"
	case CategoryCrossRef:
		return "Cross-Reference"
	case CategoryConsistency:
		return "Data Consistency"
	default:
		return string(c)
	}
}

// EvidenceStatus says whether a provider produced a usable result.
type EvidenceStatus string

const (
	EvidenceOK          EvidenceStatus = "ok"
	EvidenceMissing     EvidenceStatus = "missing"     // nothing returned; scored as weakest evidence
	EvidenceError       EvidenceStatus = "error"       // hard failure after retries; category skipped
	EvidenceUnavailable EvidenceStatus = "unavailable" // provider capability absent; scored as weakest evidence
)

// OSMEvidence describes what the map knows about the location.
type OSMEvidence struct {
	Exists           bool   `json:"exists" yaml:"exists"`
	CoordinatesMatch bool   `json:"coordinates_match" yaml:"coordinates_match"`
	NameMatches      bool   `json:"name_matches" yaml:"name_matches"`
	HasBitcoinTag    bool   `json:"has_bitcoin_tag" yaml:"has_bitcoin_tag"`
	ElementID        string `json:"element_id,omitempty" yaml:"element_id"`
}

// WebsiteEvidence describes the merchant website content.
type WebsiteEvidence struct {
	HasURL           bool `json:"has_url" yaml:"has_url"`
	Accessible       bool `json:"accessible" yaml:"accessible"`
	BitcoinMentioned bool `json:"bitcoin_mentioned" yaml:"bitcoin_mentioned"`
	CryptoMentioned  bool `json:"crypto_mentioned" yaml:"crypto_mentioned"`
	DeniesBitcoin    bool `json:"denies_bitcoin" yaml:"denies_bitcoin"`
}

// SocialEvidence describes the merchant's social media presence.
type SocialEvidence struct {
	HasAccount    bool `json:"has_account" yaml:"has_account"`
	IsActive      bool `json:"is_active" yaml:"is_active"`
	BitcoinPosts  bool `json:"bitcoin_posts" yaml:"bitcoin_posts"`
	DeniesBitcoin bool `json:"denies_bitcoin" yaml:"denies_bitcoin"`
}

// CrossRefEvidence describes listings on other platforms.
type CrossRefEvidence struct {
	PlatformCount         int  `json:"platform_count" yaml:"platform_count"`
	InformationConsistent bool `json:"information_consistent" yaml:"information_consistent"`
}

// ConsistencyEvidence holds independent field-validity flags.
type ConsistencyEvidence struct {
	AddressValid     bool `json:"address_valid" yaml:"address_valid"`
	PhoneValid       bool `json:"phone_valid" yaml:"phone_valid"`
	HoursValid       bool `json:"hours_valid" yaml:"hours_valid"`
	CoordinatesValid bool `json:"coordinates_valid" yaml:"coordinates_valid"`
	CategoryValid    bool `json:"category_valid" yaml:"category_valid"`
}

// Evidence is a tagged record: Category selects which payload is meaningful.
// A nil payload is read as the zero value, the weakest evidence for the category.
type Evidence struct {
	Category    Category             `json:"category"`
	Status      EvidenceStatus       `json:"status"`
	OSM         *OSMEvidence         `json:"osm,omitempty"`
	Website     *WebsiteEvidence     `json:"website,omitempty"`
	Social      *SocialEvidence      `json:"social,omitempty"`
	CrossRef    *CrossRefEvidence    `json:"crossref,omitempty"`
	Consistency *ConsistencyEvidence `json:"consistency,omitempty"`
	Note        string               `json:"note,omitempty"`
}

// MissingEvidence returns the weakest evidence for a category.
func MissingEvidence(c Category, note string) Evidence {
	return Evidence{Category: c, Status: EvidenceMissing, Note: note}
}

// OSMOrZero returns the OSM payload or its zero value.
func (e Evidence) OSMOrZero() OSMEvidence {
	if e.OSM == nil {
		return OSMEvidence{}
	}
	return *e.OSM
}

// WebsiteOrZero returns the website payload or its zero value.
func (e Evidence) WebsiteOrZero() WebsiteEvidence {
	if e.Website == nil {
		return WebsiteEvidence{}
	}
	return *e.Website
}

// SocialOrZero returns the social payload or its zero value.
func (e Evidence) SocialOrZero() SocialEvidence {
	if e.Social == nil {
		return SocialEvidence{}
	}
	return *e.Social
}

// CrossRefOrZero returns the cross-reference payload or its zero value.
func (e Evidence) CrossRefOrZero() CrossRefEvidence {
	if e.CrossRef == nil {
		return CrossRefEvidence{}
	}
	return *e.CrossRef
}

// ConsistencyOrZero returns the consistency payload or its zero value.
func (e Evidence) ConsistencyOrZero() ConsistencyEvidence {
	if e.Consistency == nil {
		return ConsistencyEvidence{}
	}
	return *e.Consistency
}

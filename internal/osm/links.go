package osm

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// EditURL opens the iD editor at the submitted point.
func EditURL(p models.Coordinates) string {
	return fmt.Sprintf("%s/edit#map=21/%.6f/%.6f", siteURL, p.Lat, p.Lon)
}

// ViewURL shows the submitted point on the map.
func ViewURL(p models.Coordinates) string {
	return fmt.Sprintf("%s/#map=19/%.6f/%.6f", siteURL, p.Lat, p.Lon)
}

// ElementURL links to an existing map element such as "node/123".
func ElementURL(ref string) string {
	return siteURL + "/" + ref
}

// Tag is one key=value pair.
type Tag struct {
	Key   string
	Value string
}

func (t Tag) String() string { return t.Key + "=" + t.Value }

// SuggestTags returns the tags to add for a verified merchant, in editor paste order.
func SuggestTags(sub models.Submission, checked time.Time) []Tag {
	var tags []Tag
	if name := strings.TrimSpace(sub.MerchantName); name != "" {
		tags = append(tags, Tag{"name", name})
	}
	tags = append(tags, Tag{"currency:XBT", "yes"})

	lightning, onchain := paymentKinds(sub.PaymentMethods)
	if lightning {
		tags = append(tags, Tag{"payment:lightning", "yes"})
	}
	if onchain {
		tags = append(tags, Tag{"payment:onchain", "yes"})
	}
	tags = append(tags, Tag{"check_date:currency:XBT", checked.Format("2006-01-02")})
	return tags
}

// paymentKinds reads declared methods; with nothing declared both are suggested.
func paymentKinds(methods []string) (lightning, onchain bool) {
	if len(methods) == 0 {
		return true, true
	}
	for _, m := range methods {
		m = strings.ToLower(m)
		switch {
		case strings.Contains(m, "lightning") || m == "ln":
			lightning = true
		case strings.Contains(m, "onchain") || strings.Contains(m, "on-chain") || strings.Contains(m, "bitcoin") || strings.Contains(m, "btc"):
			onchain = true
		}
	}
	if !lightning && !onchain {
		return true, true
	}
	return lightning, onchain
}

// ChangesetComment is the suggested comment for the OSM edit.
func ChangesetComment(sub models.Submission, methods []string) string {
	return fmt.Sprintf("Add Bitcoin acceptance for %s\n#btcmap issue:%d\nSource: Verified via %s",
		sub.MerchantName, sub.IssueNumber, strings.Join(methods, ", "))
}

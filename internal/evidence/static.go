package evidence

import (
	"context"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// StaticProvider returns fixed evidence. The score command uses it to replay
// evidence recorded in a YAML file.
type StaticProvider struct {
	Evidence models.Evidence
}

func (p StaticProvider) Category() models.Category { return p.Evidence.Category }

func (p StaticProvider) Check(context.Context, models.Submission) (models.Evidence, error) {
	ev := p.Evidence
	if ev.Status == "" {
		ev.Status = models.EvidenceOK
	}
	return ev, nil
}

// Static builds one StaticProvider per recorded category.
func Static(recorded map[models.Category]models.Evidence) []triage.EvidenceProvider {
	var out []triage.EvidenceProvider
	for _, c := range models.Categories {
		ev, ok := recorded[c]
		if !ok {
			continue
		}
		ev.Category = c
		out = append(out, StaticProvider{Evidence: ev})
	}
	return out
}

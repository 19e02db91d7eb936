// Package projection turns raw entity snapshots into searchable text and
// display metadata. Each entity type has one rule in a static table; every
// rule must tolerate partially populated input.
package projection

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Projection is the output of a rule.
type Projection struct {
	Text     string
	Metadata entity.Metadata
}

// Rule projects one entity type.
type Rule func(id string, raw entity.Raw) Projection

var rules = map[entity.Type]Rule{
	entity.Invoice:  projectInvoice,
	entity.Expense:  projectExpense,
	entity.Client:   projectClient,
	entity.Report:   projectReport,
	entity.Employee: projectEmployee,
}

// Has reports whether a rule is registered for t.
func Has(t entity.Type) bool {
	_, ok := rules[t]
	return ok
}

// Project applies the rule for t. The returned text is normalized and
// prefixed with the type name. A rule that yields no field text is an error.
func Project(t entity.Type, id string, raw entity.Raw) (p Projection, err error) {
	rule, ok := rules[t]
	if !ok {
		return Projection{}, fmt.Errorf("%w: no projection for %q", domain.ErrInvalidEntityType, t)
	}

	defer func() {
		if r := recover(); r != nil {
			p = Projection{}
			err = fmt.Errorf("%w: projection %s/%s panicked: %v", domain.ErrInvalidEntity, t, id, r)
		}
	}()

	p = rule(id, raw)
	text := normalize(p.Text)
	if text == "" {
		return Projection{}, fmt.Errorf("%s %s: %w", t, id, domain.ErrEmptyProjection)
	}
	p.Text = string(t) + " " + text
	return p, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

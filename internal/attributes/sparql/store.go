package sparql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

var _ attributes.Store = (*Client)(nil)

func (c *Client) SearchCandidates(ctx context.Context, q attributes.CandidateQuery) ([]attributes.Candidate, error) {
	text, err := buildSearchQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	out := make([]attributes.Candidate, 0, len(rows))
	for _, row := range rows {
		id, ok := parseDonationIRI(row["donation"].Value)
		if !ok {
			continue
		}
		cand := attributes.Candidate{DonationID: id}
		if b, ok := row["distKm"]; ok {
			d, err := strconv.ParseFloat(b.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("parse distance %q: %w", b.Value, err)
			}
			cand.DistanceKm = &d
		}
		out = append(out, cand)
	}
	return out, nil
}

func buildSearchQuery(q attributes.CandidateQuery) (string, error) {
	rejected, err := tagTerms(q.RejectedTypes)
	if err != nil {
		return "", err
	}
	avoided, err := tagTerms(q.AvoidedAllergens)
	if err != nil {
		return "", err
	}
	preferred, err := tagTerms(q.PreferredTypes)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ?donation ?distKm WHERE {\n")
	b.WriteString("  ?donation a :FoodDonation ;\n    :hasDonationStatus ?status ;\n    :hasPriority ?priority .\n")
	if len(q.Statuses) > 0 {
		terms := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			terms[i] = statusTerm(s)
		}
		fmt.Fprintf(&b, "  VALUES ?status { %s }\n", strings.Join(terms, " "))
	}
	if len(q.Priorities) > 0 {
		terms := make([]string, len(q.Priorities))
		for i, p := range q.Priorities {
			terms[i] = priorityTerm(p)
		}
		fmt.Fprintf(&b, "  VALUES ?priority { %s }\n", strings.Join(terms, " "))
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, "  FILTER NOT EXISTS { ?donation :hasFoodType ?rejected . VALUES ?rejected { %s } }\n",
			strings.Join(rejected, " "))
	}
	if len(avoided) > 0 {
		fmt.Fprintf(&b, "  FILTER NOT EXISTS { ?donation :containsAllergen ?avoided . VALUES ?avoided { %s } }\n",
			strings.Join(avoided, " "))
	}
	if len(preferred) > 0 {
		fmt.Fprintf(&b, "  BIND(EXISTS { ?donation :hasFoodType ?pref . VALUES ?pref { %s } } AS ?preferred)\n",
			strings.Join(preferred, " "))
	} else {
		b.WriteString("  BIND(false AS ?preferred)\n")
	}
	if q.Origin != nil {
		b.WriteString("  ?donation geo:lat ?lat ;\n    geo:long ?long .\n")
		fmt.Fprintf(&b, "  BIND(geof:distance(STRDT(CONCAT(\"POINT(\", STR(?long), \" \", STR(?lat), \")\"), gsp:wktLiteral), %s, uom:metre) / 1000 AS ?distKm)\n",
			wktPoint(*q.Origin))
		fmt.Fprintf(&b, "  FILTER(?distKm <= %s)\n", strconv.FormatFloat(q.MaxDistanceKm, 'f', -1, 64))
	}
	b.WriteString("}\n")
	if q.Origin != nil {
		b.WriteString("ORDER BY DESC(?preferred) ?distKm ?donation\n")
	} else {
		b.WriteString("ORDER BY DESC(?preferred) ?donation\n")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "LIMIT %d\n", q.Limit)
	}
	return b.String(), nil
}

// UpsertDonation replaces every fact about the donation.
func (c *Client) UpsertDonation(ctx context.Context, f attributes.DonationFacts) error {
	types, err := tagTerms(f.FoodTypes)
	if err != nil {
		return err
	}
	allergens, err := tagTerms(f.Allergens)
	if err != nil {
		return err
	}
	subject := donationIRI(f.ID)

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE WHERE { %s ?p ?o } ;\n", subject)
	fmt.Fprintf(&b, "INSERT DATA {\n  %s a :FoodDonation ;\n", subject)
	fmt.Fprintf(&b, "    :hasDonationStatus %s ;\n", statusTerm(f.Status))
	fmt.Fprintf(&b, "    :hasPriority %s ;\n", priorityTerm(f.Priority))
	if len(types) > 0 {
		fmt.Fprintf(&b, "    :hasFoodType %s ;\n", strings.Join(types, ", "))
	}
	if len(allergens) > 0 {
		fmt.Fprintf(&b, "    :containsAllergen %s ;\n", strings.Join(allergens, ", "))
	}
	fmt.Fprintf(&b, "    :hasExpiryDate %s ;\n", dateTime(f.ExpiresAt))
	fmt.Fprintf(&b, "    geo:lat %s ;\n    geo:long %s .\n}\n", decimal(f.Latitude), decimal(f.Longitude))

	if err := c.update(ctx, b.String()); err != nil {
		return fmt.Errorf("upsert donation facts: %w", err)
	}
	return nil
}

// UpdateStatus reports sentinel.ErrNotFound for a donation the repository
// does not hold, so callers can fall back to a full upsert.
func (c *Client) UpdateStatus(ctx context.Context, id domain.DonationID, status models.Status) error {
	subject := donationIRI(id)
	known, err := c.ask(ctx, fmt.Sprintf("ASK { %s a :FoodDonation }\n", subject))
	if err != nil {
		return fmt.Errorf("check donation facts: %w", err)
	}
	if !known {
		return fmt.Errorf("update donation status: %w", sentinel.ErrNotFound)
	}
	u := fmt.Sprintf(`DELETE { %[1]s :hasDonationStatus ?old }
INSERT { %[1]s :hasDonationStatus %[2]s }
WHERE { %[1]s a :FoodDonation . OPTIONAL { %[1]s :hasDonationStatus ?old } }
`, subject, statusTerm(status))
	if err := c.update(ctx, u); err != nil {
		return fmt.Errorf("update donation status: %w", err)
	}
	return nil
}

func (c *Client) DeleteDonation(ctx context.Context, id domain.DonationID) error {
	if err := c.update(ctx, fmt.Sprintf("DELETE WHERE { %s ?p ?o }\n", donationIRI(id))); err != nil {
		return fmt.Errorf("delete donation facts: %w", err)
	}
	return nil
}

func (c *Client) ListDonationIDs(ctx context.Context) ([]domain.DonationID, error) {
	rows, err := c.query(ctx, "SELECT DISTINCT ?donation WHERE { ?donation a :FoodDonation }\n")
	if err != nil {
		return nil, fmt.Errorf("list donation ids: %w", err)
	}
	ids := make([]domain.DonationID, 0, len(rows))
	for _, row := range rows {
		if id, ok := parseDonationIRI(row["donation"].Value); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// OrganizationPreferences returns nil when the organization has no profile.
func (c *Client) OrganizationPreferences(ctx context.Context, org domain.OrganizationID) (*attributes.Preferences, error) {
	q := fmt.Sprintf(`SELECT ?pref ?reject ?avoid ?lat ?long WHERE {
  VALUES ?org { %s }
  { ?org :prefersFoodType ?pref }
  UNION { ?org :rejectsFoodType ?reject }
  UNION { ?org :avoidsAllergen ?avoid }
  UNION { ?org geo:lat ?lat ; geo:long ?long }
}
`, orgIRI(org))
	rows, err := c.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load organization preferences: %w", err)
	}

	p := &attributes.Preferences{}
	for _, row := range rows {
		if v, ok := row["pref"]; ok {
			p.PreferredTypes = append(p.PreferredTypes, localName(v.Value))
		}
		if v, ok := row["reject"]; ok {
			p.RejectedTypes = append(p.RejectedTypes, localName(v.Value))
		}
		if v, ok := row["avoid"]; ok {
			p.AvoidedAllergens = append(p.AvoidedAllergens, localName(v.Value))
		}
		lat, latOK := row["lat"]
		long, longOK := row["long"]
		if latOK && longOK {
			la, err1 := strconv.ParseFloat(lat.Value, 64)
			lo, err2 := strconv.ParseFloat(long.Value, 64)
			if err1 == nil && err2 == nil {
				p.Location = &attributes.GeoPoint{Latitude: la, Longitude: lo}
			}
		}
	}
	if p.IsEmpty() {
		return nil, nil
	}
	return p, nil
}

package sparql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
)

const ontologyNS = "https://w3id.org/foodwaste/ontology#"

const prefixes = `PREFIX : <` + ontologyNS + `>
PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
PREFIX geo: <http://www.w3.org/2003/01/geo/wgs84_pos#>
PREFIX gsp: <http://www.opengis.net/ont/geosparql#>
PREFIX geof: <http://www.opengis.net/def/function/geosparql/>
PREFIX uom: <http://www.opengis.net/def/uom/OGC/1.0/>
`

const (
	donationLocalPrefix = "donation_"
	orgLocalPrefix      = "org_"
)

func donationIRI(id domain.DonationID) string {
	return ":" + donationLocalPrefix + id.String()
}

func orgIRI(id domain.OrganizationID) string {
	return ":" + orgLocalPrefix + id.String()
}

// parseDonationIRI recovers the id from a full donation IRI.
func parseDonationIRI(iri string) (domain.DonationID, bool) {
	local, ok := strings.CutPrefix(iri, ontologyNS+donationLocalPrefix)
	if !ok {
		return domain.DonationID{}, false
	}
	u, err := uuid.Parse(local)
	if err != nil {
		return domain.DonationID{}, false
	}
	return domain.DonationID(u), true
}

// localName strips the namespace from an ontology IRI.
func localName(iri string) string {
	if i := strings.LastIndexByte(iri, '#'); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// statusTerm maps a record status to its capitalised ontology individual.
func statusTerm(s models.Status) string {
	v := string(s)
	if v == "" {
		return ""
	}
	return ":" + strings.ToUpper(v[:1]) + v[1:]
}

func priorityTerm(p models.Priority) string {
	return ":" + string(p)
}

// tagTerms turns validated tags into ontology terms.
func tagTerms(tags []string) ([]string, error) {
	if bad := attributes.InvalidTags(tags); len(bad) > 0 {
		return nil, fmt.Errorf("invalid tag %q", bad[0])
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = ":" + t
	}
	return out, nil
}

func decimal(v float64) string {
	return `"` + strconv.FormatFloat(v, 'f', -1, 64) + `"^^xsd:decimal`
}

func dateTime(t time.Time) string {
	return `"` + escapeLiteral(t.UTC().Format(time.RFC3339Nano)) + `"^^xsd:dateTime`
}

func wktPoint(p attributes.GeoPoint) string {
	return `"POINT(` + strconv.FormatFloat(p.Longitude, 'f', -1, 64) + ` ` +
		strconv.FormatFloat(p.Latitude, 'f', -1, 64) + `)"^^gsp:wktLiteral`
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

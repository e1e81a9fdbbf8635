package propsync

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalProperty is the store-shape representation of one remote record,
// independent of which remote field names produced it.
type CanonicalProperty struct {
	ExternalId           string
	RemoteRecordId       string
	RemoteParentRecordId string

	Name           string
	Address        string
	AreaCluster    string
	ClientName     string
	ClientEmail    string
	RenovationType string
	Status         string
	Notes          string

	Rooms            *int
	SquareMeters     *float64
	PurchasePrice    decimal.Decimal
	RenovationBudget decimal.Decimal

	StartDate    *time.Time
	HandoverDate *time.Time

	PhotoURLs    []string
	DocumentURLs []string

	ProjectId *uint
}

// errMissingExternalId excludes a record from all downstream steps. It is
// not counted as a run error; a record without a stable id simply cannot be
// reconciled.
var errMissingExternalId = errors.New("record has no resolvable external id")

// fieldAliases maps each canonical attribute to the ordered list of remote
// field names and ids it has historically appeared under. The remote schema
// drifts whenever the base is edited; the first present, non-empty key wins.
// Entries prefixed "fld" are opaque field ids from older schema revisions.
var fieldAliases = map[string][]string{
	"external_id":       {"Property ID", "property_id", "External ID", "fldPropExtId01", "ID"},
	"name":              {"Name", "Property Name", "Object", "fldPropName01"},
	"address":           {"Address", "Street Address", "Full Address", "fldPropAddr01"},
	"area_cluster":      {"Area Cluster", "Cluster", "Region", "fldAreaClust01"},
	"client_name":       {"Client Name", "Client", "Owner", "fldClientNm01"},
	"client_email":      {"Client Email", "Email", "Owner Email", "fldClientEm01"},
	"renovation_type":   {"Renovation Type", "Type", "Property Type", "fldRenoType01"},
	"status":            {"Status", "Current Status", "Stage", "fldStatus01"},
	"notes":             {"Notes", "Comments", "Remarks"},
	"rooms":             {"Rooms", "Room Count", "Number of Rooms"},
	"square_meters":     {"Square Meters", "Size (sqm)", "sqm", "Area"},
	"purchase_price":    {"Purchase Price", "Price", "fldPurchPrice1"},
	"renovation_budget": {"Renovation Budget", "Budget", "Budget Total", "fldRenoBudget1"},
	"start_date":        {"Start Date", "Renovation Start", "Kickoff Date"},
	"handover_date":     {"Handover Date", "Handover", "Completion Date"},
	"photos":            {"Photos", "Pictures", "Property Photos"},
	"documents":         {"Documents", "Budget Documents", "Files", "fldDocuments01"},
	"document_kind":     {"Budget Type", "Document Type", "Doc Kind"},
	"unit_record":       {"Unit", "Unit Record", "fldUnitLink01"},
	"project_record":    {"Project", "Project Link", "fldProjLink01"},
	"linked_records":    {"Properties", "Units", "Linked Properties", "fldGroupLinks1"},
}

// projectLinkTypes is the allow-set of renovation types that belong to a
// parent project and may resolve a project id.
var projectLinkTypes = map[string]bool{
	"apartment":       true,
	"micro_apartment": true,
}

// lookupField returns the first present, non-empty value for a canonical
// attribute, consulting the alias table in order.
func lookupField(fields map[string]interface{}, canonical string) (interface{}, bool) {
	for _, key := range fieldAliases[canonical] {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func stringField(fields map[string]interface{}, canonical string) string {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		return ""
	}
	return strings.TrimSpace(s)
}

func intField(fields map[string]interface{}, canonical string) *int {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		i := int(d.IntPart())
		return &i
	}
	return nil
}

func floatField(fields map[string]interface{}, canonical string) *float64 {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		f, _ := d.Float64()
		return &f
	}
	return nil
}

func decimalField(fields map[string]interface{}, canonical string) decimal.Decimal {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return decimal.Zero
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if d, err := decimal.NewFromString(cleaned); err == nil {
			return d
		}
	}
	return decimal.Zero
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02.01.2006",
	"2006/01/02",
}

// dateField parses defensively: invalid or unparsable values normalize to
// nil rather than failing the record.
func dateField(fields map[string]interface{}, canonical string) *time.Time {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return nil
	}
	s, isStr := v.(string)
	if !isStr {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// urlListField flattens the three shapes a list-valued attachment field can
// take: attachment objects exposing a url, plain string arrays, or one
// comma-joined string. Non-http(s) entries are dropped.
func urlListField(fields map[string]interface{}, canonical string) []string {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return nil
	}
	return flattenURLs(v)
}

func flattenURLs(v interface{}) []string {
	var out []string
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			switch entry := item.(type) {
			case map[string]interface{}:
				if u, ok := entry["url"].(string); ok && isHTTPURL(u) {
					out = append(out, strings.TrimSpace(u))
				}
			case string:
				if isHTTPURL(entry) {
					out = append(out, strings.TrimSpace(entry))
				}
			}
		}
	case string:
		for _, part := range strings.Split(val, ",") {
			if isHTTPURL(part) {
				out = append(out, strings.TrimSpace(part))
			}
		}
	}
	return out
}

func isHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// linkedRecordIDs extracts remote record ids from a linked-record field.
func linkedRecordIDs(fields map[string]interface{}, canonical string) []string {
	v, ok := lookupField(fields, canonical)
	if !ok {
		return nil
	}
	var out []string
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			if id, isStr := item.(string); isStr && strings.TrimSpace(id) != "" {
				out = append(out, strings.TrimSpace(id))
			}
		}
	case string:
		if strings.TrimSpace(val) != "" {
			out = append(out, strings.TrimSpace(val))
		}
	}
	return out
}

// Normalize converts one raw record into the canonical shape. Only the
// external id is required; every other missing attribute degrades to its
// zero value. The optional projectIdLookup maps remote project record ids
// to local project group ids and is consulted only for allow-set types.
func Normalize(rec Record, projectIdLookup map[string]uint) (*CanonicalProperty, error) {
	externalId := stringField(rec.Fields, "external_id")
	if externalId == "" {
		return nil, errMissingExternalId
	}

	cp := &CanonicalProperty{
		ExternalId:     externalId,
		RemoteRecordId: strings.TrimSpace(rec.ID),

		Name:           stringField(rec.Fields, "name"),
		Address:        stringField(rec.Fields, "address"),
		AreaCluster:    stringField(rec.Fields, "area_cluster"),
		ClientName:     stringField(rec.Fields, "client_name"),
		ClientEmail:    stringField(rec.Fields, "client_email"),
		RenovationType: strings.ToLower(stringField(rec.Fields, "renovation_type")),
		Status:         stringField(rec.Fields, "status"),
		Notes:          stringField(rec.Fields, "notes"),

		Rooms:            intField(rec.Fields, "rooms"),
		SquareMeters:     floatField(rec.Fields, "square_meters"),
		PurchasePrice:    decimalField(rec.Fields, "purchase_price"),
		RenovationBudget: decimalField(rec.Fields, "renovation_budget"),

		StartDate:    dateField(rec.Fields, "start_date"),
		HandoverDate: dateField(rec.Fields, "handover_date"),

		PhotoURLs:    urlListField(rec.Fields, "photos"),
		DocumentURLs: urlListField(rec.Fields, "documents"),
	}

	if ids := linkedRecordIDs(rec.Fields, "unit_record"); len(ids) > 0 {
		cp.RemoteParentRecordId = ids[0]
	}

	if projectLinkTypes[cp.RenovationType] && projectIdLookup != nil {
		if ids := linkedRecordIDs(rec.Fields, "project_record"); len(ids) > 0 {
			if id, ok := projectIdLookup[ids[0]]; ok {
				cp.ProjectId = &id
			}
		}
	}

	return cp, nil
}

const (
	DocumentKindInitial = "initial"
	DocumentKindFinal   = "final"
)

// InferDocumentKind guesses whether a budget document is the initial or the
// final one when the remote type tag is absent. Tie-breaks, in order: an
// explicit tag wins, then a "final" token in the name, then an "initial" or
// "first" token, then position (first document is initial).
//
// The heuristic is best-effort and occasionally disagrees with ground
// truth. Remove it once the remote reliably fills the Budget Type field.
func InferDocumentKind(tag string, name string, index int) string {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case DocumentKindInitial:
		return DocumentKindInitial
	case DocumentKindFinal:
		return DocumentKindFinal
	}

	lower := strings.ToLower(name)
	if strings.Contains(lower, "final") {
		return DocumentKindFinal
	}
	if strings.Contains(lower, "initial") || strings.Contains(lower, "first") {
		return DocumentKindInitial
	}
	if index == 0 {
		return DocumentKindInitial
	}
	return DocumentKindFinal
}

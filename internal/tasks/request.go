// Package tasks is the task runtime: job submission, the durable job queue,
// the worker loop and the runner that executes one scrape job.
package tasks

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/scraper"
	"emlak-aggregator/internal/sites"
)

//go:embed request.schema.json
var requestSchemaJSON string

var requestSchema = jsonschema.MustCompileString("request.schema.json", requestSchemaJSON)

// Request is a submitted scrape job
type Request struct {
	Platform    string              `json:"platform,omitempty"`
	ListingType string              `json:"listing_type"`
	Category    string              `json:"category"`
	Subcategory string              `json:"subcategory,omitempty"`
	Cities      []string            `json:"cities"`
	Districts   map[string][]string `json:"districts,omitempty"`
	MaxPages    int                 `json:"max_pages,omitempty"`
	MaxListings int                 `json:"max_listings,omitempty"`
}

// FieldError is one rejected field of a request
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem found in a request
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ParseRequest checks raw JSON against the request schema and then
// normalizes it
func ParseRequest(raw []byte) (Request, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Request{}, &ValidationError{Fields: []FieldError{{Field: "body", Reason: "not valid JSON"}}}
	}
	if err := requestSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Request{}, schemaErrors(ve)
		}
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("failed to decode request: %w", err)
	}
	return req.Normalize()
}

func schemaErrors(ve *jsonschema.ValidationError) *ValidationError {
	out := &ValidationError{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out.add(fieldName(e.InstanceLocation), e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out.Fields, func(i, j int) bool { return out.Fields[i].Field < out.Fields[j].Field })
	return out
}

// fieldName turns a JSON pointer into a dotted field path
func fieldName(pointer string) string {
	p := strings.Trim(pointer, "/")
	if p == "" {
		return "request"
	}
	return strings.ReplaceAll(p, "/", ".")
}

// Normalize resolves aliases and place names to their canonical forms and
// applies the checks the schema cannot express
func (r Request) Normalize() (Request, error) {
	verr := &ValidationError{}
	out := Request{
		Subcategory: strings.TrimSpace(r.Subcategory),
		MaxPages:    r.MaxPages,
		MaxListings: r.MaxListings,
	}

	if p, err := parser.ParsePortal(r.Platform); err != nil {
		verr.add("platform", err.Error())
	} else {
		out.Platform = string(p)
	}
	if t, err := parser.ParseListingType(r.ListingType); err != nil {
		verr.add("listing_type", "must be for-sale or for-rent")
	} else {
		out.ListingType = string(t)
	}
	if c, err := parser.ParseCategory(r.Category); err != nil {
		verr.add("category", err.Error())
	} else {
		out.Category = string(c)
	}
	if r.MaxPages < 0 {
		verr.add("max_pages", "must be >= 0")
	}
	if r.MaxListings < 0 {
		verr.add("max_listings", "must be >= 0")
	}

	if len(r.Cities) == 0 {
		verr.add("cities", "at least one city is required")
	}
	seen := map[string]bool{}
	for i, name := range r.Cities {
		city, ok := sites.LookupCity(name)
		if !ok {
			verr.add(fmt.Sprintf("cities.%d", i), fmt.Sprintf("unknown city %q", name))
			continue
		}
		if !seen[city] {
			seen[city] = true
			out.Cities = append(out.Cities, city)
		}
	}

	keys := make([]string, 0, len(r.Districts))
	for k := range r.Districts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		city, ok := sites.LookupCity(key)
		if !ok || !seen[city] {
			verr.add("districts."+key, "city is not in the cities list")
			continue
		}
		if out.Districts == nil {
			out.Districts = map[string][]string{}
		}
		for _, d := range r.Districts[key] {
			if d = strings.TrimSpace(d); d != "" {
				out.Districts[city] = append(out.Districts[city], d)
			}
		}
	}

	if err := verr.orNil(); err != nil {
		return Request{}, err
	}
	return out, nil
}

// Portal returns the portal of a normalized request
func (r Request) Portal() parser.Portal {
	p, _ := parser.ParsePortal(r.Platform)
	return p
}

// Query returns the adapter query of a normalized request
func (r Request) Query() sites.Query {
	t, _ := parser.ParseListingType(r.ListingType)
	c, _ := parser.ParseCategory(r.Category)
	return sites.Query{ListingType: t, Category: c, Subcategory: r.Subcategory}
}

// ScrapeJob converts a normalized request into the engine's job
func (r Request) ScrapeJob() scraper.Job {
	return scraper.Job{
		Query:       r.Query(),
		Cities:      r.Cities,
		Districts:   r.Districts,
		MaxPages:    r.MaxPages,
		MaxListings: r.MaxListings,
	}
}

// Package input turns the analyze command's JSON arguments into test
// requests and validates the combined options
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mrz1836/go-speedvitals/internal/budget"
	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// Examples shown when an argument cannot be parsed
const (
	ConfigExample = `[["https://example.com", "mobile", "us"], ["https://example.com/about", "desktop", "uk"]]`
	URLsExample   = `["https://example.com", "https://example.com/about"]`
)

// Defaults applied to --urls entries
const (
	DefaultDevice   = "mobile"
	DefaultLocation = "us"
)

// ErrInvalidJSON is returned when an argument is not valid JSON
var ErrInvalidJSON = errors.New("invalid JSON")

const configSchemaURL = "mem://speedvitals/config.schema.json"

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "array",
    "items": [
      {"type": "string", "minLength": 1},
      {"type": "string", "minLength": 1},
      {"type": "string", "minLength": 1}
    ],
    "minItems": 3,
    "maxItems": 3
  }
}`

const urlsSchemaURL = "mem://speedvitals/urls.schema.json"

const urlsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {"type": "string", "minLength": 1}
}`

var schemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, 2)
	for id, doc := range map[string]string{configSchemaURL: configSchema, urlsSchemaURL: urlsSchema} {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(id, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("add schema resource: %w", err)
		}
		schema, err := compiler.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema: %w", err)
		}
		compiled[id] = schema
	}
	return compiled, nil
})

// decode unmarshals raw and validates it against the schema registered under id
func decode(flag, id, raw string) (any, error) {
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w for --%s: %w", ErrInvalidJSON, flag, err)
	}

	compiled, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := compiled[id].Validate(payload); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return payload, nil
}

// ParseConfig parses a JSON list of [url, device, location] tuples
func ParseConfig(raw string) ([]speedvitals.TestRequest, error) {
	payload, err := decode("config", configSchemaURL, raw)
	if err != nil {
		return nil, err
	}

	entries, _ := payload.([]any)
	requests := make([]speedvitals.TestRequest, 0, len(entries))
	for _, entry := range entries {
		tuple, _ := entry.([]any)
		u, _ := tuple[0].(string)
		device, _ := tuple[1].(string)
		location, _ := tuple[2].(string)
		requests = append(requests, speedvitals.TestRequest{URL: u, Device: device, Location: location})
	}
	return requests, nil
}

// ParseURLs parses a JSON list of URLs, testing each with the given device
// and location (mobile and us when empty)
func ParseURLs(raw, device, location string) ([]speedvitals.TestRequest, error) {
	payload, err := decode("urls", urlsSchemaURL, raw)
	if err != nil {
		return nil, err
	}

	if device == "" {
		device = DefaultDevice
	}
	if location == "" {
		location = DefaultLocation
	}

	entries, _ := payload.([]any)
	requests := make([]speedvitals.TestRequest, 0, len(entries))
	for _, entry := range entries {
		u, _ := entry.(string)
		requests = append(requests, speedvitals.TestRequest{URL: u, Device: device, Location: location})
	}
	return requests, nil
}

// Options are the analyze command's inputs after parsing
type Options struct {
	APIKey   string
	Config   []speedvitals.TestRequest // from --config
	URLs     []speedvitals.TestRequest // from --urls
	Device   string                    // raw --device flag
	Location string                    // raw --location flag
	Budget   budget.Thresholds
}

// Validate reports every problem with the options at once
func (o Options) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(o.APIKey) == "" {
		result = multierror.Append(result, fmt.Errorf(
			"%w. Set it via --api-key or SPEEDVITALS_API_KEY environment variable", prerrors.ErrAPIKeyMissing))
	}

	for _, req := range append(append([]speedvitals.TestRequest{}, o.Config...), o.URLs...) {
		if !validURL(req.URL) {
			result = multierror.Append(result, fmt.Errorf("invalid URL format: %q", req.URL))
		}
	}

	hasConfig, hasURLs := len(o.Config) > 0, len(o.URLs) > 0
	switch {
	case hasConfig && hasURLs:
		result = multierror.Append(result, errors.New("cannot provide both config and urls. Use either --config or --urls, not both"))
	case !hasConfig && !hasURLs:
		result = multierror.Append(result, errors.New("either config or urls must be provided. Use --config or --urls"))
	}

	if (o.Device != "" || o.Location != "") && !hasURLs {
		result = multierror.Append(result, errors.New("--location and --device can only be used with --urls option"))
	}

	for _, problem := range o.Budget.Validate() {
		result = multierror.Append(result, errors.New(problem))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", prerrors.ErrInvalidOptions, err)
	}
	return nil
}

// Requests returns the requests to run in input order
func (o Options) Requests() []speedvitals.TestRequest {
	if len(o.Config) > 0 {
		return o.Config
	}
	return o.URLs
}

// validURL accepts absolute http and https URLs
func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

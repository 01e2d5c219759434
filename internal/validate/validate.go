// Package validate provides input validation for ids, URIs, and other
// externally supplied values. All public-facing inputs should be
// validated before they reach the scheduler.
package validate

import (
	"net/url"
	"strings"
	"unicode"

	apperr "offliner/internal/errors"
)

// maxIDLength bounds content ids; they are primary keys and travel in
// URLs and filenames.
const maxIDLength = 256

// ID validates a content id.
func ID(id string) error {
	if id == "" {
		return apperr.NewWithMessage("validate.ID", apperr.ErrInvalidRequest, "id must not be empty")
	}
	if len(id) > maxIDLength {
		return apperr.NewWithMessage("validate.ID", apperr.ErrInvalidRequest, "id too long")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return apperr.NewWithMessage("validate.ID", apperr.ErrInvalidRequest, "id contains control characters")
		}
	}
	return nil
}

// URI validates a content URI and returns the parsed form.
func URI(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, apperr.NewWithMessage("validate.URI", apperr.ErrInvalidURI, "URI must not be empty")
	}

	raw = strings.TrimSpace(raw)

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return nil, apperr.NewWithMessage("validate.URI", apperr.ErrInvalidURI, "URI must start with http:// or https://")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, apperr.NewWithMessage("validate.URI", apperr.ErrInvalidURI, "URI is not parseable")
	}
	if parsed.Host == "" {
		return nil, apperr.NewWithMessage("validate.URI", apperr.ErrInvalidURI, "URI has no host")
	}
	return parsed, nil
}

// Request validates the externally supplied fields of a download request.
func Request(id, uri string) error {
	if err := ID(id); err != nil {
		return err
	}
	if _, err := URI(uri); err != nil {
		return err
	}
	return nil
}

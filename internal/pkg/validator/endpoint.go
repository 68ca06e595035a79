package validator

import (
	"errors"
	"net/url"
	"strings"
)

// EndpointURL checks that raw is an absolute http(s) URL a delivery can be
// POSTed to.
func EndpointURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid url format")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	if u.User != nil {
		return errors.New("url must not embed credentials")
	}
	if u.Fragment != "" {
		return errors.New("url must not contain a fragment")
	}

	return nil
}

// EventNames checks an endpoint subscription list. "*" subscribes to all events.
func EventNames(events []string) error {
	if len(events) == 0 {
		return errors.New(`events must name at least one event or "*"`)
	}
	for _, ev := range events {
		if strings.TrimSpace(ev) == "" {
			return errors.New("event names must not be empty")
		}
		if strings.ContainsAny(ev, " \t\r\n") {
			return errors.New("event names must not contain whitespace")
		}
	}
	return nil
}

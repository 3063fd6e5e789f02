// Package assets downloads rule files laid out like the embedded rule set.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/address-formatter/internal/registry"
)

const maxBody = 4 << 20

var errNotFound = errors.New("not found")

type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient returns a client for rule files under baseURL. Retries are
// logged through logger when it is non-nil.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 6 * time.Second
	rc.Logger = nil
	if logger != nil {
		rc.Logger = logger
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

// Fetch downloads the rule files. The worldwide and components files are
// required; missing optional files are left empty. langs selects the
// abbreviation files to fetch; when empty, every language named in
// country2lang is tried.
func (c *Client) Fetch(ctx context.Context, langs []string) (registry.Assets, error) {
	var a registry.Assets
	var err error
	if a.Worldwide, err = c.get(ctx, registry.WorldwideFile); err != nil {
		return a, fmt.Errorf("fetch %s: %w", registry.WorldwideFile, err)
	}
	if a.Components, err = c.get(ctx, registry.ComponentsFile); err != nil {
		return a, fmt.Errorf("fetch %s: %w", registry.ComponentsFile, err)
	}
	optional := []struct {
		name string
		dst  *[]byte
	}{
		{registry.CountryNamesFile, &a.CountryNames},
		{registry.Country2LangFile, &a.Country2Lang},
		{registry.StateCodesFile, &a.StateCodes},
		{registry.CountyCodesFile, &a.CountyCodes},
	}
	for _, o := range optional {
		if *o.dst, err = c.getOptional(ctx, o.name); err != nil {
			return a, fmt.Errorf("fetch %s: %w", o.name, err)
		}
	}

	if len(langs) == 0 {
		langs = languagesOf(a.Country2Lang)
	}
	for _, lang := range langs {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		name := path.Join(registry.AbbreviationsDir, lang+".yaml")
		b, err := c.getOptional(ctx, name)
		if err != nil {
			return a, fmt.Errorf("fetch %s: %w", name, err)
		}
		if b == nil {
			continue
		}
		if a.Abbreviations == nil {
			a.Abbreviations = make(map[string][]byte)
		}
		a.Abbreviations[lang] = b
	}
	return a, nil
}

// Load fetches the rule files and parses them.
func (c *Client) Load(ctx context.Context, langs []string) (*registry.Registry, error) {
	a, err := c.Fetch(ctx, langs)
	if err != nil {
		return nil, err
	}
	return registry.Parse(a)
}

func (c *Client) getOptional(ctx context.Context, name string) ([]byte, error) {
	b, err := c.get(ctx, name)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	return b, err
}

func (c *Client) get(ctx context.Context, name string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/yaml, text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode >= 400 {
		snippet, _ := ioReadAllLimit(resp.Body, 512)
		return nil, fmt.Errorf("rules server error %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return ioReadAllLimit(resp.Body, maxBody)
}

func languagesOf(country2lang []byte) []string {
	raw := map[string]string{}
	if err := yaml.Unmarshal(country2lang, &raw); err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, langs := range raw {
		for _, l := range strings.Split(langs, ",") {
			l = strings.ToLower(strings.TrimSpace(l))
			if l != "" && !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}

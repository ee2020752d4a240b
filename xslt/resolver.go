package xslt

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Resolver locates and opens the resources referenced by a stylesheet:
// xsl:import, xsl:include and the document() function.
type Resolver interface {
	Resolve(base, href string) (string, error)
	Open(uri string) (io.ReadCloser, error)
}

type defaultResolver struct {
	client *http.Client
}

// DefaultResolver reads local files from disk and fetches http(s) URLs with
// the default client. Credentials embedded in a URL are sent with basic
// authentication.
func DefaultResolver() Resolver {
	return defaultResolver{
		client: http.DefaultClient,
	}
}

func isRemote(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func (r defaultResolver) Resolve(base, href string) (string, error) {
	if u, err := url.Parse(href); err == nil && u.IsAbs() && len(u.Scheme) > 1 {
		if u.Scheme == "file" {
			return filepath.FromSlash(u.Path), nil
		}
		return href, nil
	}
	if isRemote(base) {
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(href)
		if err != nil {
			return "", err
		}
		return b.ResolveReference(ref).String(), nil
	}
	if filepath.IsAbs(href) || base == "" {
		return filepath.Clean(href), nil
	}
	return filepath.Join(filepath.Dir(base), href), nil
}

func (r defaultResolver) Open(uri string) (io.ReadCloser, error) {
	if !isRemote(uri) {
		return os.Open(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		req.SetBasicAuth(u.User.Username(), pass)
		u.User = nil
		req.URL = u
	}
	res, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status %s", redact(uri), res.Status)
	}
	return res.Body, nil
}

func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return u.Redacted()
}

package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// A Resource is a readable stream backed by a local file or a remote http(s)
// document. Scene files, material libraries and option files are all loaded
// through resources so that includes can be resolved relative to their parent.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Returns the path to this resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// Returns true if the Resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Open a resource. If relTo is specified and pathToResource is relative and
// does not define a scheme, then the new resource path is resolved against
// the directory of relTo.
//
// The caller must close the returned resource.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	resURL, err := url.Parse(strings.Replace(pathToResource, `\`, `/`, -1))
	if err != nil {
		return nil, err
	}

	if resURL.Scheme == "" && relTo != nil && !filepath.IsAbs(resURL.Path) {
		resURL, err = relTo.resolve(resURL.Path)
		if err != nil {
			return nil, err
		}
	}

	var reader io.ReadCloser
	switch resURL.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(resURL.Path))
		if err != nil {
			return nil, err
		}
	case "http", "https":
		resp, err := http.Get(resURL.String())
		if err != nil {
			return nil, fmt.Errorf("resource: could not fetch '%s': %s", resURL.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("resource: could not fetch '%s': status %d", resURL.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", resURL.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		url:        resURL,
	}, nil
}

// Create a resource from a reader. Relative includes from this resource are
// resolved against the current working directory.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	resURL, err := url.Parse(name)
	if err != nil {
		resURL = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        resURL,
	}
}

// Build the URL of a sibling resource.
func (r *Resource) resolve(relPath string) (*url.URL, error) {
	if r.IsRemote() {
		sibling := *r.url
		sibling.Path = path.Join(path.Dir(r.url.Path), relPath)
		return &sibling, nil
	}

	parent, err := filepath.Abs(r.url.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: could not detect abs path for %s; %s", r.url.String(), err.Error())
	}
	return &url.URL{Path: filepath.Join(filepath.Dir(parent), relPath)}, nil
}

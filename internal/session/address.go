package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/mattfrayser/scenesync/internal/geometry"
)

// MaxSceneIDLength bounds accepted scene ids
const MaxSceneIDLength = 64

// ErrInvalidSceneID is returned for scene ids that are empty, too long or
// not alphanumeric.
var ErrInvalidSceneID = errors.New("invalid scene id")

var (
	addressRouter = newAddressRouter()
	idValidator   = validator.New()
)

// newAddressRouter: path shapes that carry a scene id, most specific first
func newAddressRouter() *mux.Router {
	r := mux.NewRouter()
	r.Path("/api/v1/{id}/listen")
	r.Path("/scenes/{id}")
	r.Path("/{id}")
	return r
}

// ParseAddress extracts the scene id from a page address. The fragment wins
// ("https://host/#XVlBzg"); otherwise the path is matched against the listen
// endpoint, /scenes/{id} and /{id}. A bare id is accepted as well.
func ParseAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", raw, err)
	}

	if u.Fragment != "" {
		return ValidateSceneID(u.Fragment)
	}

	if u.Scheme == "" && u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}

	req := &http.Request{Method: http.MethodGet, URL: u, Host: u.Host}
	var match mux.RouteMatch
	if !addressRouter.Match(req, &match) {
		return "", fmt.Errorf("%w: no scene id in %q", ErrInvalidSceneID, raw)
	}
	return ValidateSceneID(match.Vars["id"])
}

// ValidateSceneID strips markup from id and checks its shape.
func ValidateSceneID(id string) (string, error) {
	id = geometry.SanitizeString(id)
	tag := fmt.Sprintf("required,alphanum,max=%d", MaxSceneIDLength)
	if err := idValidator.Var(id, tag); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSceneID, id)
	}
	return id, nil
}

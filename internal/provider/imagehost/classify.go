package imagehost

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/galleryfs/galleryfs/pkg/errors"
)

// credential identifies which credential a request must carry.
type credential int

const (
	// credentialAnonymous is the application client id, valid for public
	// reads only.
	credentialAnonymous credential = iota

	// credentialUser is the account bearer token.
	credentialUser
)

// classifyRequest decides which credential a request requires from its target
// resource and HTTP method. Mutations and account-scoped resources always
// require the user token. An unrecognized read-only resource downgrades to
// the anonymous credential; an unrecognized mutation is rejected instead of
// downgraded, so a classifier gap can never turn an authenticated write into
// an anonymous one.
func classifyRequest(method, resource string) (credential, error) {
	write := method != http.MethodGet

	switch {
	case strings.HasPrefix(resource, "account/"):
		return credentialUser, nil
	case strings.HasPrefix(resource, "album/"), resource == "album":
		if write {
			return credentialUser, nil
		}
		return credentialAnonymous, nil
	case strings.HasPrefix(resource, "image/"), resource == "image", resource == "upload":
		if write {
			return credentialUser, nil
		}
		return credentialAnonymous, nil
	case strings.HasPrefix(resource, "gallery/"):
		return credentialAnonymous, nil
	}

	if write {
		return credentialUser, errors.NewError(errors.ErrCodeAuthRequired,
			fmt.Sprintf("cannot classify mutation of resource %q", resource)).
			WithComponent(component)
	}
	return credentialAnonymous, nil
}

package objectstore

import (
	"context"
	"strings"
	"time"
)

// urlExpiryMargin is subtracted from a signed URL's real expiry before it is
// served from the cache, so a URL never expires mid-use.
const urlExpiryMargin = 30 * time.Second

// defaultSignedURLTTL is the lifetime of presigned URLs when not configured.
const defaultSignedURLTTL = 15 * time.Minute

// signedURL is one cached presigned URL.
type signedURL struct {
	url       string
	expiresAt time.Time
}

// resolveURL maps an object key to a browser-usable URL. With a public base
// URL configured, keys map by concatenation with no signing. Otherwise a
// short-lived presigned URL is generated on demand and cached until shortly
// before its real expiry.
func (a *Adapter) resolveURL(ctx context.Context, key string) (string, error) {
	if a.publicBaseURL != "" {
		return strings.TrimSuffix(a.publicBaseURL, "/") + "/" + key, nil
	}

	now := time.Now()

	a.urlMu.Lock()
	cached, ok := a.urlCache[key]
	a.urlMu.Unlock()
	if ok && now.Before(cached.expiresAt) {
		return cached.url, nil
	}

	url, err := a.signer.SignGetURL(ctx, key, a.signedURLTTL)
	if err != nil {
		return "", err
	}

	a.urlMu.Lock()
	a.urlCache[key] = signedURL{
		url:       url,
		expiresAt: now.Add(a.signedURLTTL - urlExpiryMargin),
	}
	a.urlMu.Unlock()

	return url, nil
}

// dropURLs evicts cached URLs for every key containing substr, used when the
// underlying objects move or disappear.
func (a *Adapter) dropURLs(substr string) {
	a.urlMu.Lock()
	for key := range a.urlCache {
		if strings.Contains(key, substr) {
			delete(a.urlCache, key)
		}
	}
	a.urlMu.Unlock()
}

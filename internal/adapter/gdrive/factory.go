package gdrive

import (
	"context"
	"net/url"

	"github.com/Ning0612/treeblob/internal/adapter"
)

// Scheme is the store root scheme served by this package, e.g. "gdrive:///Blobs"
const Scheme = "gdrive"

// Factory connects Drive adapters with one OAuth2 identity
type Factory struct {
	auth *Authenticator
}

// NewFactory creates a factory. An empty tokenPath uses the default location
// under the user config directory.
func NewFactory(clientID, clientSecret, tokenPath string) *Factory {
	return &Factory{auth: NewAuthenticator(clientID, clientSecret, tokenPath)}
}

// Connect implements adapter.AdapterFactory. The path of root names the
// Drive folder; the host is ignored.
func (f *Factory) Connect(ctx context.Context, root *url.URL) (adapter.Adapter, error) {
	return New(ctx, f.auth, root.Path)
}

// Supports implements adapter.AdapterFactory
func (f *Factory) Supports(scheme string) bool {
	return scheme == Scheme
}

// Authenticator returns the authenticator used for connections
func (f *Factory) Authenticator() *Authenticator {
	return f.auth
}

var _ adapter.AdapterFactory = (*Factory)(nil)
var _ adapter.Adapter = (*Adapter)(nil)

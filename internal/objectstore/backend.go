package objectstore

import (
	"github.com/PaulBabatuyi/PlacementAssets/internal/storage"
)

// Backend is the storage capability handed to the asset service: local
// staging plus one remote driver, chosen once at start-up.
type Backend struct {
	*storage.Stager
	*Client
}

func NewBackend(stager *storage.Stager, client *Client) *Backend {
	return &Backend{Stager: stager, Client: client}
}

// DriverName reports which remote store is in use.
func (b *Backend) DriverName() string {
	return b.Client.driver.Name()
}

package database

import (
	"errors"
	"fmt"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
)

// ErrOwnerNotFound is returned when no profile exists for a user.
var ErrOwnerNotFound = fmt.Errorf("owner %w", models.ErrNotFound)

// ErrNoRowsUpdated means a save targeted a record that no longer exists.
var ErrNoRowsUpdated = errors.New("no rows updated")

// ownerTable maps an owner kind to its table and asset columns.
type ownerTable struct {
	name     string
	urlCol   string
	idCol    string
	nameCol  string
	assetFor models.AssetKind
}

var ownerTables = map[models.OwnerKind]ownerTable{
	models.OwnerStudent: {
		name:     "students",
		urlCol:   "resume_url",
		idCol:    "resume_id",
		nameCol:  "roll_no",
		assetFor: models.AssetResume,
	},
	models.OwnerCompany: {
		name:     "companies",
		urlCol:   "logo_url",
		idCol:    "logo_id",
		nameCol:  "name",
		assetFor: models.AssetLogo,
	},
}

func tableFor(kind models.OwnerKind) (ownerTable, error) {
	t, ok := ownerTables[kind]
	if !ok {
		return ownerTable{}, fmt.Errorf("unknown owner kind %q", kind)
	}
	return t, nil
}

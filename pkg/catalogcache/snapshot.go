// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package catalogcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telekom/api-catalog/pkg/discovery"
)

// FormatVersion identifies the snapshot layout written by this package.
// Snapshots with any other version are ignored.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when a snapshot was written with an unknown format version.
var ErrUnsupportedFormat = errors.New("unsupported catalog snapshot format")

type snapshot struct {
	Version int                `json:"version"`
	SavedAt time.Time          `json:"savedAt"`
	Catalog *discovery.Catalog `json:"catalog"`
}

// Encode serializes catalog into a versioned snapshot.
func Encode(catalog *discovery.Catalog, savedAt time.Time) ([]byte, error) {
	if catalog == nil {
		return nil, errors.New("cannot encode a nil catalog")
	}
	return json.Marshal(snapshot{Version: FormatVersion, SavedAt: savedAt.UTC(), Catalog: catalog})
}

// Decode parses a snapshot written by Encode and checks the catalog's classification.
func Decode(data []byte) (*discovery.Catalog, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unable to decode catalog snapshot: %w", err)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, s.Version)
	}
	if s.Catalog == nil {
		return nil, errors.New("catalog snapshot has no catalog")
	}
	if err := s.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("catalog snapshot is inconsistent: %w", err)
	}
	return s.Catalog, nil
}

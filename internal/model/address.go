// Package model holds the records that flow through the geocoding pipeline:
// input addresses, per-layer attempts and the consolidated result.
package model

import (
	"fmt"
	"strings"
)

// AddressRecord is one row of the input address list.
type AddressRecord struct {
	Unit            string `json:"unit_reference"`
	MicroArea       string `json:"micro_area"`
	Address         string `json:"address"`
	UnitLocation    string `json:"unit_location,omitempty"`
	UnitLocationURL string `json:"unit_location_url,omitempty"`
}

// Key identifies an address within its unit and micro-area. The same street
// may legitimately appear under several micro-areas.
type Key struct {
	Unit      string `json:"unit_reference"`
	MicroArea string `json:"micro_area"`
	Address   string `json:"address"`
}

// Key returns the record's identity with surrounding whitespace trimmed.
func (r AddressRecord) Key() Key {
	return Key{
		Unit:      strings.TrimSpace(r.Unit),
		MicroArea: strings.TrimSpace(r.MicroArea),
		Address:   strings.TrimSpace(r.Address),
	}
}

// String renders the key for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Unit, k.MicroArea, k.Address)
}

// Valid reports whether every part of the key is present.
func (k Key) Valid() bool {
	return k.Unit != "" && k.MicroArea != "" && k.Address != ""
}

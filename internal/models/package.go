package models

import (
	"cmp"
	"regexp"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// PackageStatusUnknown is used when 17TRACK reports no status at all.
const PackageStatusUnknown = "Unknown"

// Package is a normalized 17TRACK package. It is never mutated after construction.
type Package struct {
	TrackingNumber       string     `json:"tracking_number"`
	Status               string     `json:"status"`
	FriendlyName         *string    `json:"friendly_name,omitempty"`
	InfoText             *string    `json:"info_text,omitempty"`
	Timestamp            *time.Time `json:"timestamp,omitempty"`
	OriginCountry        *string    `json:"origin_country,omitempty"`
	DestinationCountry   *string    `json:"destination_country,omitempty"`
	PackageType          *string    `json:"package_type,omitempty"`
	TrackingInfoLanguage *string    `json:"tracking_info_language,omitempty"`
	Location             *string    `json:"location,omitempty"`
}

// StatusSlug returns the bucket key of the package status.
func (p *Package) StatusSlug() string {
	return StatusSlug(p.Status)
}

// ComparePackages orders packages by all fields in declaration order, tracking number first.
// A nil optional field sorts before any value.
func ComparePackages(a, b *Package) int {
	if c := cmp.Compare(a.TrackingNumber, b.TrackingNumber); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Status, b.Status); c != 0 {
		return c
	}
	if c := compareOptional(a.FriendlyName, b.FriendlyName); c != 0 {
		return c
	}
	if c := compareOptional(a.InfoText, b.InfoText); c != 0 {
		return c
	}
	if c := compareTime(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	for _, pair := range [][2]*string{
		{a.OriginCountry, b.OriginCountry},
		{a.DestinationCountry, b.DestinationCountry},
		{a.PackageType, b.PackageType},
		{a.TrackingInfoLanguage, b.TrackingInfoLanguage},
		{a.Location, b.Location},
	} {
		if c := compareOptional(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return 0
}

func compareOptional(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

var underscoreRuns = regexp.MustCompile(`_+`)

// StatusSlug lowercases and transliterates s and collapses separator runs into a single "_".
// "In Transit" -> "in_transit".
func StatusSlug(s string) string {
	out := strings.ReplaceAll(slug.Make(s), "-", "_")
	out = strings.Trim(underscoreRuns.ReplaceAllString(out, "_"), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

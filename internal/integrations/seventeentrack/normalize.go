package seventeentrack

import (
	"strconv"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

// 17TRACK returns the same record in several shapes. Each field below is looked up
// through an ordered list of candidate keys; the first present value wins.
// A value is present when it is a non-empty string, a non-zero number, true,
// or a non-empty object or array.
var (
	latestEventKeys = []string{"latest_event", "last_event"}
	statusKeys      = []string{"status", "description"}
	infoTextKeys    = []string{"description", "event"}
	eventTimeKeys   = []string{"time_iso", "time_utc", "time_raw"}
	originKeys      = []string{"country", "from"}
	destinationKeys = []string{"country", "to"}
)

// Normalize converts one raw gettrackinfo record into a Package.
// Missing or malformed nested data yields nil fields, never an error.
func Normalize(raw map[string]any) *models.Package {
	tracking := object(raw, "track_info")
	latestStatus := object(tracking, "latest_status")
	latestEvent := object(tracking, latestEventKeys...)

	status, ok := text(latestStatus, statusKeys...)
	if !ok {
		status, ok = text(raw, "status")
	}
	if !ok {
		status = models.PackageStatusUnknown
	}

	infoText := optText(latestEvent, infoTextKeys...)
	if infoText == nil {
		infoText = optText(latestStatus, "sub_status")
	}

	packageInfo := object(tracking, "package_info")
	origin := object(packageInfo, "origin_info")
	destination := object(packageInfo, "destination_info")

	number, _ := text(raw, "number")

	return &models.Package{
		TrackingNumber:       number,
		Status:               status,
		FriendlyName:         optText(raw, "title"),
		InfoText:             infoText,
		Timestamp:            parseEventTime(optText(latestEvent, eventTimeKeys...)),
		OriginCountry:        optText(origin, originKeys...),
		DestinationCountry:   optText(destination, destinationKeys...),
		PackageType:          optText(packageInfo, "package_type"),
		TrackingInfoLanguage: optText(raw, "lang"),
		Location:             optText(latestEvent, "location"),
	}
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseEventTime accepts ISO-8601 with or without an offset ("Z" included).
// Values without an offset are read as UTC.
func parseEventTime(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, *raw); err == nil {
			return &t
		}
	}
	return nil
}

// object returns the first present nested object under keys, or an empty one.
// Keys holding something other than an object are skipped.
func object(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok && len(obj) > 0 {
			return obj
		}
	}
	return map[string]any{}
}

// text returns the first present scalar under keys rendered as a string.
// Keys holding objects or arrays are skipped.
func text(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := scalarText(m[k]); ok {
			return s, true
		}
	}
	return "", false
}

func optText(m map[string]any, keys ...string) *string {
	s, ok := text(m, keys...)
	if !ok {
		return nil
	}
	return &s
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), x != 0
	case bool:
		return strconv.FormatBool(x), x
	default:
		return "", false
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0
	case bool:
		return x
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

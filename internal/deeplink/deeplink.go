// Package deeplink builds platform-appropriate turn-by-turn navigation
// URIs from a facility's coordinates and label. Pure string
// construction, the caller decides what to do with the URI.
package deeplink

import (
	"fmt"
	"net/url"
)

// Platform selects the URI scheme family.
type Platform string

const (
	PlatformGeo    Platform = "geo"    // RFC 5870 geo: scheme (Android intents)
	PlatformApple  Platform = "apple"  // Apple Maps
	PlatformGoogle Platform = "google" // Google Maps web URL, universal fallback
)

// ParsePlatform maps a wire value onto a Platform, defaulting to the
// universal web fallback for anything unrecognized.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformGeo, PlatformApple, PlatformGoogle:
		return Platform(s)
	}
	return PlatformGoogle
}

// NavigateURI builds the deep link for one destination.
func NavigateURI(platform Platform, lat, lon float64, label string) string {
	switch platform {
	case PlatformGeo:
		if label != "" {
			return fmt.Sprintf("geo:%.6f,%.6f?q=%.6f,%.6f(%s)", lat, lon, lat, lon, url.QueryEscape(label))
		}
		return fmt.Sprintf("geo:%.6f,%.6f", lat, lon)
	case PlatformApple:
		v := url.Values{}
		v.Set("daddr", fmt.Sprintf("%.6f,%.6f", lat, lon))
		if label != "" {
			v.Set("q", label)
		}
		return "https://maps.apple.com/?" + v.Encode()
	default:
		v := url.Values{}
		v.Set("api", "1")
		v.Set("destination", fmt.Sprintf("%.6f,%.6f", lat, lon))
		return "https://www.google.com/maps/dir/?" + v.Encode()
	}
}

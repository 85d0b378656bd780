package overpass

import (
	"strings"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// ClassifyElement maps a raw element's tag bag onto the typed Facility
// union. Pure and total: missing or unrecognized tags degrade to unknown
// values, never to an error or a "no".
func ClassifyElement(layer model.LayerKind, el Element) model.Facility {
	lat, lon := el.Lat, el.Lon
	if el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	f := model.Facility{
		ID:   el.ID,
		Lat:  lat,
		Lon:  lon,
		Tags: el.Tags,
	}
	switch layer {
	case model.LayerToilets:
		f.Kind = model.KindToilet
		f.Toilet = classifyToilet(el.Tags)
	default:
		f.Kind = model.KindWater
		f.Water = classifyWater(el.Tags)
	}
	return f
}

// first matching source tag wins; an element carrying several patterns
// is classified by this priority, not combined
var waterSubtypes = []struct {
	key, value string
	subtype    model.WaterSubtype
}{
	{"natural", "spring", model.WaterSpring},
	{"man_made", "water_well", model.WaterWell},
	{"man_made", "water_tap", model.WaterTap},
	{"waterway", "water_point", model.WaterPoint},
	{"amenity", "drinking_water", model.WaterDrinking},
}

func classifyWater(tags map[string]string) *model.WaterInfo {
	info := &model.WaterInfo{Subtype: model.WaterUnknown}
	for _, s := range waterSubtypes {
		if tag(tags, s.key) == s.value {
			info.Subtype = s.subtype
			break
		}
	}

	// Amenity-typed sources default to drinkable; an explicit
	// drinking_water=no wins over everything.
	switch tag(tags, "drinking_water") {
	case "no":
		info.Drinkable = false
	case "yes":
		info.Drinkable = true
	default:
		info.Drinkable = tag(tags, "amenity") == "drinking_water"
	}
	return info
}

func classifyToilet(tags map[string]string) *model.ToiletInfo {
	return &model.ToiletInfo{
		Accessibility: model.ToiletAccessibility{
			Wheelchair:    triState(tags, "wheelchair", true),
			ChangingTable: triState(tags, "changing_table", false),
		},
		Details: model.ToiletDetails{
			Fee:          triState(tags, "fee", false),
			OpeningHours: tag(tags, "opening_hours"),
			Unisex:       triState(tags, "unisex", false),
		},
	}
}

func tag(tags map[string]string, key string) string {
	if tags == nil {
		return ""
	}
	return strings.TrimSpace(tags[key])
}

// triState folds a tag into yes/no/limited/unknown. OSM data is
// incomplete often enough that absent never means no.
func triState(tags map[string]string, key string, allowLimited bool) model.TriState {
	switch strings.ToLower(tag(tags, key)) {
	case "yes", "designated":
		return model.TriYes
	case "no":
		return model.TriNo
	case "limited":
		if allowLimited {
			return model.TriLimited
		}
		return model.TriUnknown
	default:
		return model.TriUnknown
	}
}

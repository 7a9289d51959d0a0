package parser

import (
	"regexp"
	"strconv"
	"strings"

	"emlak-aggregator/internal/normalize"
)

var (
	roomsRe     = regexp.MustCompile(`^(\d+(?:[.,]5)?)\s*\+\s*(\d+)$`)
	areaRe      = regexp.MustCompile(`(?i)\d.*(m²|m2)`)
	floorRe     = regexp.MustCompile(`(?i)(\d+\.?\s*kat|kat\s*\d+|zemin|giriş|bahçe katı|çatı|bodrum|villa katı|kot\s*\d)`)
	ageRe       = regexp.MustCompile(`(?i)(\d+)\s*yaş|sıfır bina`)
	roomCountRe = regexp.MustCompile(`(?i)(\d+)\s*oda`)
	bedCountRe  = regexp.MustCompile(`(?i)(\d+)\s*yatak`)
	starsRe     = regexp.MustCompile(`(?i)(\d)\s*(yıldız|★)`)
)

// chipKind is what a quick-info chip turned out to describe
type chipKind int

const (
	chipOther chipKind = iota
	chipRooms
	chipArea
	chipFloor
	chipAge
	chipRoomCount
	chipBedCount
	chipStars
)

func classify(chip string) (chipKind, string) {
	c := strings.TrimSpace(chip)
	lower := normalize.Lower(c)
	switch {
	case roomsRe.MatchString(strings.ReplaceAll(c, " ", "")):
		return chipRooms, strings.ReplaceAll(c, " ", "")
	case lower == "stüdyo" || lower == "stüdyo (1+0)":
		return chipRooms, "1+0"
	case areaRe.MatchString(c):
		if v, ok := normalize.ParseArea(c); ok {
			return chipArea, strconv.FormatFloat(v, 'f', -1, 64)
		}
	case bedCountRe.MatchString(lower):
		return chipBedCount, bedCountRe.FindStringSubmatch(lower)[1]
	case starsRe.MatchString(lower):
		return chipStars, starsRe.FindStringSubmatch(lower)[1]
	case roomCountRe.MatchString(lower):
		return chipRoomCount, roomCountRe.FindStringSubmatch(lower)[1]
	case ageRe.MatchString(lower):
		if strings.Contains(lower, "sıfır") {
			return chipAge, "0"
		}
		return chipAge, ageRe.FindStringSubmatch(lower)[1]
	case floorRe.MatchString(lower):
		return chipFloor, c
	}
	return chipOther, c
}

// chipSet holds the first chip of each kind
type chipSet map[chipKind]string

func collect(chips []string) chipSet {
	set := chipSet{}
	for _, chip := range chips {
		kind, value := classify(chip)
		if value == "" {
			continue
		}
		if _, seen := set[kind]; !seen {
			set[kind] = value
		}
	}
	return set
}

func put(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func residenceDetails(_ string, chips []string) map[string]string {
	set := collect(chips)
	d := map[string]string{}
	put(d, "property_type", set[chipOther])
	put(d, "rooms", set[chipRooms])
	put(d, "floor", set[chipFloor])
	put(d, "area", set[chipArea])
	return d
}

func landDetails(title string, chips []string) map[string]string {
	set := collect(chips)
	d := map[string]string{}
	put(d, "parcel_type", set[chipOther])
	put(d, "area", set[chipArea])
	put(d, "zoning_status", zoningStatus(title))
	return d
}

// zoningStatus reads the zoning keyword out of a land listing title
func zoningStatus(title string) string {
	t := normalize.Lower(title)
	switch {
	case strings.Contains(t, "imarsız"):
		return "unzoned"
	case strings.Contains(t, "imarlı"):
		return "zoned"
	case strings.Contains(t, "tapulu"), strings.Contains(t, "müstakil tapu"):
		return "titled"
	}
	return ""
}

func commercialDetails(_ string, chips []string) map[string]string {
	set := collect(chips)
	d := map[string]string{}
	put(d, "unit_type", set[chipOther])
	put(d, "floor", set[chipFloor])
	put(d, "area", set[chipArea])
	return d
}

func tourismDetails(_ string, chips []string) map[string]string {
	set := collect(chips)
	d := map[string]string{}
	put(d, "facility_type", set[chipOther])
	put(d, "room_count", set[chipRoomCount])
	if beds := set[chipBedCount]; beds != "" {
		d["bed_count"] = beds
	} else {
		put(d, "stars", set[chipStars])
	}
	return d
}

func timeshareDetails(_ string, chips []string) map[string]string {
	set := collect(chips)
	d := map[string]string{}
	put(d, "rooms", set[chipRooms])
	put(d, "area", set[chipArea])
	put(d, "building_age", set[chipAge])
	put(d, "floor", set[chipFloor])
	return d
}

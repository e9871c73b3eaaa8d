// Package crs parses and formats coordinate reference system identifiers,
// e.g. EPSG codes, OGC URNs and OGC http URIs.
package crs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	crsURIRegexURL  = regexp.MustCompile("^https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN  = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+):[^:]*:(?P<code>[^:]+)$")
	crsRegexCode    = regexp.MustCompile(`^(?P<code>\d+)$`)
	crsRegexAuthKey = regexp.MustCompile("^(?P<authority>[A-Za-z]+):(?P<code>[^:]+)$")
)

// CRS identifies a coordinate reference system by authority and code, e.g. EPSG and 4326.
type CRS struct {
	AuthorityName string `validate:"required,alpha"`
	AuthorityCode string `validate:"required,alphanum"`
}

// EPSG returns the CRS for the given EPSG code.
func EPSG(code int) CRS {
	return CRS{AuthorityName: "EPSG", AuthorityCode: strconv.Itoa(code)}
}

// Parse accepts a bare EPSG code ("4326"), an authority:code pair ("EPSG:4326"),
// an OGC URN ("urn:ogc:def:crs:EPSG::4326") or an OGC URI
// ("http://www.opengis.net/def/crs/EPSG/0/4326").
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	var c CRS
	switch {
	case crsRegexCode.MatchString(s):
		c = CRS{AuthorityName: "EPSG", AuthorityCode: s}
	default:
		parts := crsURIRegexURL.FindStringSubmatch(s)
		if parts == nil {
			parts = crsURIRegexURN.FindStringSubmatch(s)
		}
		if parts == nil {
			parts = crsRegexAuthKey.FindStringSubmatch(s)
		}
		if parts == nil {
			return c, fmt.Errorf(`could not parse crs "%v"`, s)
		}
		c = CRS{AuthorityName: strings.ToUpper(parts[1]), AuthorityCode: parts[2]}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return CRS{}, fmt.Errorf(`invalid crs "%v": %w`, s, err)
	}
	return c, nil
}

// MustParse is like Parse but panics on an invalid identifier.
func MustParse(s string) CRS {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// IsZero reports whether no CRS is set.
func (c CRS) IsZero() bool {
	return c.AuthorityName == "" && c.AuthorityCode == ""
}

// String returns the authority:code form, e.g. EPSG:4326.
func (c CRS) String() string {
	return c.AuthorityName + ":" + c.AuthorityCode
}

// URN returns the OGC URN form, e.g. urn:ogc:def:crs:EPSG::4326.
func (c CRS) URN() string {
	return "urn:ogc:def:crs:" + c.AuthorityName + "::" + c.AuthorityCode
}

// SRID returns the numeric spatial reference id, as used by GeoPackage and PostGIS.
// OGC:CRS84 maps to 4326, since both stores always use x/y (lon/lat) order.
func (c CRS) SRID() (int32, error) {
	if c.AuthorityName == "OGC" && c.AuthorityCode == "CRS84" {
		return 4326, nil
	}
	code, err := strconv.ParseInt(c.AuthorityCode, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(`could not parse crs authority code "%v": %w`, c.AuthorityCode, err)
	}
	return int32(code), nil
}

// Equal reports whether both identify the same CRS, ignoring authority case.
func (c CRS) Equal(other CRS) bool {
	return strings.EqualFold(c.AuthorityName, other.AuthorityName) && c.AuthorityCode == other.AuthorityCode
}

// MarshalJSON encodes the CRS as a GeoJSON (2008) named crs member.
func (c CRS) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}{
		Type: "name",
		Properties: struct {
			Name string `json:"name"`
		}{Name: c.URN()},
	})
}

// UnmarshalJSON decodes a GeoJSON named crs member, or a plain string identifier.
func (c *CRS) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromMember(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FromMember parses an already decoded crs member: a string identifier or a named crs object.
func FromMember(raw interface{}) (CRS, error) {
	switch member := raw.(type) {
	case string:
		return Parse(member)
	case map[string]interface{}:
		if member["type"] != "name" {
			return CRS{}, fmt.Errorf(`unsupported crs type "%v"`, member["type"])
		}
		rawProperties, ok := member["properties"]
		if !ok {
			return CRS{}, fmt.Errorf(`missing key "properties"`)
		}
		properties, ok := rawProperties.(map[string]interface{})
		if !ok {
			return CRS{}, fmt.Errorf(`"properties" should be an object but is a %T`, rawProperties)
		}
		name, ok := properties["name"].(string)
		if !ok {
			return CRS{}, fmt.Errorf(`"properties.name" should be a string but is a %T`, properties["name"])
		}
		return Parse(name)
	default:
		return CRS{}, fmt.Errorf(`wrong type for crs: %T`, raw)
	}
}

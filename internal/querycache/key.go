package querycache

import (
	"strconv"
	"strings"
)

// Key identifies a cached read: resource name followed by scope parameters.
type Key []string

// HasPrefix reports whether k starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		if k[i] != p {
			return false
		}
	}
	return true
}

// Resource is the first key element.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

// Resource names.
const (
	ResMunicipalities = "municipalities"
	ResConfigs        = "configs"
	ResConfig         = "config"
	ResNews           = "news"
	ResObjects        = "objects"
	ResAllObjects     = "all-objects"
	ResComments       = "comments"
	ResUser           = "user"
	ResDocs           = "docs"
	ResWeather        = "weather"
)

func Municipalities() Key { return Key{ResMunicipalities} }

func Configs() Key { return Key{ResConfigs} }

func ConfigKey(key string) Key { return Key{ResConfig, key} }

func News(munID string) Key { return Key{ResNews, munID} }

// Objects keys a filtered object list. Unset filters are encoded as "".
func Objects[T1, T2 ~string](munID string, objType *T1, sphere *T2) Key {
	return Key{ResObjects, munID, opt(objType), opt(sphere)}
}

func AllObjects(munID string) Key { return Key{ResAllObjects, munID} }

func Comments(objID string) Key { return Key{ResComments, objID} }

func User(id string) Key { return Key{ResUser, id} }

func Docs(munID string) Key { return Key{ResDocs, munID} }

// Weather keys a forecast by coordinate rounded to two decimals.
func Weather(lat, lng float64) Key {
	return Key{ResWeather, strconv.FormatFloat(lat, 'f', 2, 64), strconv.FormatFloat(lng, 'f', 2, 64)}
}

// MunicipalityContent returns the prefixes covering every object list of
// a municipality.
func MunicipalityContent(munID string) []Key {
	return []Key{
		{ResObjects, munID},
		{ResNews, munID},
		{ResAllObjects, munID},
	}
}

func opt[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

package helpers

import (
	"reflect"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every
// HTML element and attribute, leaving plain text.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizeHTMLStrict removes every HTML tag from s while stripping leading and
// trailing whitespace.
func SanitizeHTMLStrict(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(StrictHTMLPolicy().Sanitize(s))
}

// SanitizeStruct walks v (a pointer to a struct) and strips markup from every
// reachable string, including strings nested in slices, maps and pointers.
// Model output routinely smuggles tags lifted from scraped pages.
func SanitizeStruct(v interface{}) {
	if v == nil {
		return
	}
	sanitizeValue(reflect.ValueOf(v))
}

func sanitizeValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			sanitizeValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			sanitizeValue(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			sanitizeValue(v.Index(i))
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			elem := v.MapIndex(k)
			switch elem.Kind() {
			case reflect.String:
				v.SetMapIndex(k, reflect.ValueOf(SanitizeHTMLStrict(elem.String())))
			default:
				// map elements are not addressable; sanitize a copy and put it back
				cp := reflect.New(elem.Type()).Elem()
				cp.Set(elem)
				sanitizeValue(cp)
				v.SetMapIndex(k, cp)
			}
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(SanitizeHTMLStrict(v.String()))
		}
	}
}

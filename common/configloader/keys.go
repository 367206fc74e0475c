package configloader

import (
	"encoding"
	"reflect"
	"strings"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// structKeys перечисляет листовые ключи конфига по тегам mapstructure:
// "kafka.brokers", "http.addr", … Поля с ",squash" поднимаются на уровень
// родителя, "-" пропускаются.
func structKeys(cfgPtr interface{}) []string {
	t := reflect.TypeOf(cfgPtr)
	if t == nil {
		return nil
	}
	var keys []string
	collectKeys(t, "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, out *[]string) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, squash := parseTag(f)
		if name == "-" {
			continue
		}

		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		nested := ft.Kind() == reflect.Struct && !reflect.PointerTo(ft).Implements(textUnmarshalerType)

		switch {
		case nested && squash:
			collectKeys(ft, prefix, out)
		case nested:
			collectKeys(ft, prefix+name+".", out)
		default:
			*out = append(*out, prefix+name)
		}
	}
}

func parseTag(f reflect.StructField) (name string, squash bool) {
	tag := f.Tag.Get("mapstructure")
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if opt == "squash" {
			squash = true
		}
	}
	if name == "" && !squash {
		name = f.Name
	}
	return strings.ToLower(name), squash
}

// common/configloader/decoder.go
package configloader

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// decode переносит настройки viper в структуру. ENV приходят строками,
// поэтому включён weak typing: "15" → int, "true" → bool, "0.5" → float.
func decode(input map[string]interface{}, target interface{}) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToTrimmedSliceHook(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           target,
		DecodeHook:       hook,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// stringToTrimmedSliceHook: "a, b,,c" → []string{"a","b","c"}; "" → пустой срез.
func stringToTrimmedSliceHook(sep string) mapstructure.DecodeHookFuncKind {
	return func(f, t reflect.Kind, data interface{}) (interface{}, error) {
		if f != reflect.String || t != reflect.Slice {
			return data, nil
		}
		raw := data.(string)
		out := []string{}
		for _, part := range strings.Split(raw, sep) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

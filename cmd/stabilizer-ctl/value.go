package main

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sinara-hw/stabilizer-go/internal/device"
	"github.com/sinara-hw/stabilizer-go/pkg/settings"
	"github.com/sinara-hw/stabilizer-go/pkg/stream"
)

var targetType = reflect.TypeOf(stream.Target{})

// parseSetting parses text as YAML into the type of the setting at path, so
// the published CBOR decodes on the device. Stream targets also accept
// "a.b.c.d:port".
func parseSetting(path, text string) (any, error) {
	var scratch device.Settings
	field, err := settings.Resolve(&scratch, path)
	if err != nil {
		return nil, err
	}

	if field.Type() == targetType && !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return stream.ParseTarget(strings.TrimSpace(text))
	}

	value := reflect.New(field.Type())
	if err := yaml.Unmarshal([]byte(text), value.Interface()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return value.Elem().Interface(), nil
}

// parseValue parses free-form YAML for raw publications.
func parseValue(text string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// emit writes v as indented JSON when --json is set, otherwise calls human.
func (c *cli) emit(v any, human func(w io.Writer) error) error {
	if c.jsonOut {
		data, err := json.MarshalIndent(emptyCollections(v), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.out, string(data))
		return err
	}
	return human(c.out)
}

// emptyCollections turns a nil slice or map into an empty one so JSON shows [] or {}.
func emptyCollections(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return reflect.MakeSlice(rv.Type(), 0, 0).Interface()
		}
	case reflect.Map:
		if rv.IsNil() {
			return reflect.MakeMap(rv.Type()).Interface()
		}
	}
	return v
}

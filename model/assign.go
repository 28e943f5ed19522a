package model

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeFor[time.Time]()

// Layouts tried, in order, when a driver reports a time as text.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Assign stores a driver value in dst, converting as database/sql would
// when scanning into a typed destination. nil zeroes dst.
func Assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if dst.CanAddr() {
		if s, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(src)
		}
	}

	sv := reflect.ValueOf(src)
	if dst.Type() == timeType {
		t, err := asTime(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		var ns sql.NullString
		if err := ns.Scan(src); err != nil {
			return err
		}
		dst.SetString(ns.String)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var ni sql.NullInt64
		if err := ni.Scan(src); err != nil {
			return err
		}
		if dst.OverflowInt(ni.Int64) {
			return fmt.Errorf("value %d overflows %s", ni.Int64, dst.Type())
		}
		dst.SetInt(ni.Int64)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var ni sql.NullInt64
		if err := ni.Scan(src); err != nil {
			return err
		}
		if ni.Int64 < 0 || dst.OverflowUint(uint64(ni.Int64)) {
			return fmt.Errorf("value %d overflows %s", ni.Int64, dst.Type())
		}
		dst.SetUint(uint64(ni.Int64))
		return nil
	case reflect.Float32, reflect.Float64:
		var nf sql.NullFloat64
		if err := nf.Scan(src); err != nil {
			return err
		}
		if dst.Kind() == reflect.Float32 && math.Abs(nf.Float64) > math.MaxFloat32 {
			return fmt.Errorf("value %g overflows %s", nf.Float64, dst.Type())
		}
		dst.SetFloat(nf.Float64)
		return nil
	case reflect.Bool:
		var nb sql.NullBool
		if err := nb.Scan(src); err != nil {
			return err
		}
		dst.SetBool(nb.Bool)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			switch b := src.(type) {
			case []byte:
				dst.SetBytes(append([]byte(nil), b...))
				return nil
			case string:
				dst.SetBytes([]byte(b))
				return nil
			}
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}

func asTime(src any) (time.Time, error) {
	var s string
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("cannot assign %T to time.Time", src)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

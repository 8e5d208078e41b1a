package transform

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"relmap/data/orm"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// 日期列接受的文本格式，按顺序尝试
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// setField 把驱动返回的值写入字段，按字段类型与列的语义类型转换
func setField(field reflect.Value, col orm.ColumnMeta, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	ft := field.Type()
	if ft.Kind() == reflect.Interface {
		field.Set(reflect.ValueOf(v))
		return nil
	}
	if reflect.PointerTo(ft).Implements(scannerType) {
		ptr := reflect.New(ft)
		if err := ptr.Interface().(sql.Scanner).Scan(v); err != nil {
			return err
		}
		field.Set(ptr.Elem())
		return nil
	}
	if ft.Kind() == reflect.Ptr {
		elem := reflect.New(ft.Elem())
		if err := setField(elem.Elem(), col, v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch {
	case ft == timeType:
		t, err := toTime(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	case ft.Kind() == reflect.Bool:
		b, err := toBool(v)
		if err != nil {
			return err
		}
		field.SetBool(b)
		return nil
	case ft.Kind() == reflect.String:
		switch s := v.(type) {
		case string:
			field.SetString(s)
		case time.Time:
			field.SetString(s.Format(time.RFC3339Nano))
		default:
			field.SetString(fmt.Sprint(v))
		}
		return nil
	case isInt(ft.Kind()):
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, ft)
		}
		field.SetInt(n)
		return nil
	case isUint(ft.Kind()):
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < 0 || field.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, ft)
		}
		field.SetUint(uint64(n))
		return nil
	case ft.Kind() == reflect.Float32 || ft.Kind() == reflect.Float64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		field.SetFloat(f)
		return nil
	case rv.Type().AssignableTo(ft):
		field.Set(rv)
		return nil
	case rv.Type().ConvertibleTo(ft):
		field.Set(rv.Convert(ft))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, ft)
}

// convertValue 按列语义类型转换 map 实体中的值；custom/string 原样保留
func convertValue(col orm.ColumnMeta, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch col.Type {
	case orm.TypeBoolean:
		return toBool(v)
	case orm.TypeDate:
		return toTime(v)
	case orm.TypeNumber:
		switch n := v.(type) {
		case float32, float64:
			return n, nil
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i, nil
			}
			return toFloat64(n)
		default:
			return toInt64(v)
		}
	}
	return v, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	n, err := toInt64(v)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("value %d is not a boolean", n)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	rv := reflect.ValueOf(v)
	switch {
	case isInt(rv.Kind()):
		return rv.Int(), nil
	case isUint(rv.Kind()):
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("value %v is not an integer", f)
		}
		// float64(MaxInt64) 向上取整为 2^63，本身已越界
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v overflows int64", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	rv := reflect.ValueOf(v)
	switch {
	case isInt(rv.Kind()):
		return float64(rv.Int()), nil
	case isUint(rv.Kind()):
		return float64(rv.Uint()), nil
	case rv.Kind() == reflect.Float32:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as date", t)
	}
	n, err := toInt64(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot convert %T to date", v)
	}
	return time.Unix(n, 0).UTC(), nil
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// fieldByIndexAlloc 按索引路径取字段，途经的 nil 内嵌指针会被分配
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

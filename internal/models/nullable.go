package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// NullableFloat - числовое поле запроса. Set=true, если ключ присутствовал в JSON,
// Null=true, если значение null или пустая строка. Принимает числа и числовые
// строки (запятые-разделители тысяч отбрасываются). NaN и бесконечности отвергаются.
type NullableFloat struct {
	Set   bool
	Null  bool
	Value float64
}

// UnmarshalJSON реализует json.Unmarshaler.
func (n *NullableFloat) UnmarshalJSON(b []byte) error {
	n.Set = true
	raw, isNull, err := numericText(b)
	if err != nil {
		return err
	}
	if isNull {
		n.Null = true
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("number must be finite, got %q", raw)
	}
	n.Value = v
	return nil
}

// Ptr возвращает указатель на значение или nil.
func (n NullableFloat) Ptr() *float64 {
	if !n.Set || n.Null {
		return nil
	}
	v := n.Value
	return &v
}

// NullableInt - целочисленное поле запроса, аналог NullableFloat.
type NullableInt struct {
	Set   bool
	Null  bool
	Value int
}

// UnmarshalJSON реализует json.Unmarshaler.
func (n *NullableInt) UnmarshalJSON(b []byte) error {
	n.Set = true
	raw, isNull, err := numericText(b)
	if err != nil {
		return err
	}
	if isNull {
		n.Null = true
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return fmt.Errorf("invalid integer %q", raw)
		}
		v = int(f)
	}
	n.Value = v
	return nil
}

// NullableString - строковое поле запроса с признаком присутствия.
type NullableString struct {
	Set   bool
	Null  bool
	Value string
}

// UnmarshalJSON реализует json.Unmarshaler.
func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		n.Null = true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Числа и прочие скаляры принимаем как текст
		n.Value = string(bytes.TrimSpace(b))
		return nil //nolint:nilerr // нестроковые скаляры допустимы
	}
	n.Value = s
	return nil
}

// FlexID - идентификатор предмета: число или строка с числом.
type FlexID int64

// UnmarshalJSON реализует json.Unmarshaler.
func (id *FlexID) UnmarshalJSON(b []byte) error {
	raw, isNull, err := numericText(b)
	if err != nil {
		return err
	}
	if isNull {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = FlexID(v)
	return nil
}

// numericText достает текст числа из JSON-числа или JSON-строки.
func numericText(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, jsonNull) {
		return "", true, nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, fmt.Errorf("invalid string: %w", err)
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			return "", true, nil
		}
		return s, false, nil
	}
	return string(b), false, nil
}

package codec

import (
	"testing"
)

func TestDecodeJSONPreservesOrder(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"z": 1, "a": 2, "m": 3}`))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(*Map)
	if !ok {
		t.Fatalf("got %T, want *Map", v)
	}
	keys := m.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestDecodeJSONNumberClasses(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"i": 3, "f": 3.0, "e": 1e2, "big": 99999999999999999999}`))
	if err != nil {
		t.Fatal(err)
	}
	m := v.(*Map)
	if got, _ := m.Get("i"); got != Int(3) {
		t.Errorf("i = %#v, want Int(3)", got)
	}
	if got, _ := m.Get("f"); got != Float(3) {
		t.Errorf("f = %#v, want Float(3)", got)
	}
	if got, _ := m.Get("e"); got != Float(100) {
		t.Errorf("e = %#v, want Float(100)", got)
	}
	if got, _ := m.Get("big"); got != Float(1e20) {
		t.Errorf("big = %#v, want Float(1e20)", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	v := NewMap().
		Set("name", String("reading")).
		Set("count", Int(2)).
		Set("ratio", Float(0.5)).
		Set("flags", List{Bool(true), Null{}}).
		Set("nested", NewMap().Set("x", String("a\"b")))
	data, err := EncodeJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON(%s) failed: %v", data, err)
	}
	if !Equal(back, v) {
		t.Fatalf("JSON round trip changed value: %s", data)
	}
}

func TestEncodeJSONKeepsFloatClass(t *testing.T) {
	data, err := EncodeJSON(NewMap().Set("f", Float(3)))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"f":3.0}` {
		t.Errorf("EncodeJSON = %s, want {\"f\":3.0}", data)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	for _, input := range []string{``, `{"a":}`, `[1,2`, `{"a":1} extra`} {
		if v, err := DecodeJSON([]byte(input)); err == nil {
			t.Errorf("DecodeJSON(%q) = %#v, want error", input, v)
		}
	}
}

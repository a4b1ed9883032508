package flatten

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func raws(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = json.RawMessage(d)
	}
	return out
}

func TestCSV_UnionOfColumns(t *testing.T) {
	got, err := CSV(raws(
		`{"uniqueId":"model.a","name":"a","executionTime":1.50}`,
		`{"uniqueId":"model.b","status":"error","name":"b"}`,
	))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	want := "uniqueId,name,executionTime,status\n" +
		"model.a,a,1.50,\n" +
		"model.b,b,,error\n"
	if string(got) != want {
		t.Errorf("CSV =\n%s\nwant\n%s", got, want)
	}
}

func TestCSV_NestedAndNull(t *testing.T) {
	got, err := CSV(raws(
		`{"id":1,"tests":[{"name":"t1", "fail": false}],"criteria":{"warnAfter":null},"error":null,"skip":true}`,
	))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "id,tests,criteria,error,skip" {
		t.Errorf("header = %q", lines[0])
	}
	want := `1,"[{""name"":""t1"",""fail"":false}]","{""warnAfter"":null}",,true`
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestCSV_QuotesSpecialCharacters(t *testing.T) {
	got, err := CSV(raws(`{"description":"a, \"b\"\nc"}`))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	want := "description\n\"a, \"\"b\"\"\nc\"\n"
	if string(got) != want {
		t.Errorf("CSV = %q, want %q", got, want)
	}
}

func TestDecode_DuplicateKeyKeepsLast(t *testing.T) {
	table, err := Decode(raws(`{"a":1,"a":2}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(table.Columns) != 1 || table.Rows[0]["a"] != "2" {
		t.Errorf("table = %+v", table)
	}
}

func TestDecode_NotObject(t *testing.T) {
	_, err := Decode(raws(`{"a":1}`, `[1,2]`))
	if !errors.Is(err, ErrNotObject) {
		t.Errorf("expected ErrNotObject, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode(raws(`{"a":`)); err == nil {
		t.Error("expected error for truncated record")
	}
}

func TestCSV_Empty(t *testing.T) {
	got, err := CSV(nil)
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	if string(got) != "\n" {
		t.Errorf("CSV = %q, want a bare header line", got)
	}
}

package trace

import (
	"bytes"
	"io"
	"io/ioutil"
	"reflect"
	"testing"
)

type closeBuffer struct {
	bytes.Buffer
}

func (c *closeBuffer) Close() error { return nil }

var records = []*Record{
	{Pid: 1, Num: 9, Args: []uint32{1, 0xbfffff00, 12}, Ret: 12, HasRet: true},
	{Pid: 2, Num: 1, Args: []uint32{0xffffffff}},
	{Pid: 1, Num: 3, Args: []uint32{2}, Ret: 0xffffffff, HasRet: true},
	{Pid: 3, Num: 0},
	{Pid: 3, Num: 0, Args: []uint32{}},
	{Pid: 3, Num: 8, Args: []uint32{0, 0, 1}, Killed: true},
}

func TestRoundTrip(t *testing.T) {
	var buf closeBuffer
	w, err := NewWriter(&buf, "echo hello")
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range records {
		if err := w.Pack(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(ioutil.NopCloser(&buf.Buffer))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Header.Cmdline != "echo hello" {
		t.Fatalf("cmdline = %q", r.Header.Cmdline)
	}
	for i, want := range records {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		want.Nargs = uint8(len(want.Args))
		if len(want.Args) == 0 {
			want.Args = nil
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("record %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next() at end = %v", err)
	}
}

func TestBadMagic(t *testing.T) {
	data := bytes.Repeat([]byte{'X'}, 200)
	if _, err := NewReader(ioutil.NopCloser(bytes.NewReader(data))); err == nil {
		t.Fatal("NewReader() accepted bad magic")
	}
}

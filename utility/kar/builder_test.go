// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("test", strings.NewReader("idunvovkjnreovmegihjbrqlkmfrjnb")); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test2", strings.NewReader("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb")); err != nil {
		t.Fatal(err)
	}

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}
	if err := builder.Add("test", strings.NewReader("again")); err != ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	buf := bytes.NewBuffer([]byte{})
	num, err := builder.WriteTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if num != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", num, buf.Len())
	}
	if !bytes.HasPrefix(buf.Bytes(), Magic[:]) {
		t.Error("archive does not start with magic")
	}
	if len(builder.files) != 0 {
		t.Error("builder should be empty after WriteTo")
	}
}

func TestCloseRemovesTemp(t *testing.T) {
	builder, err := NewBuilder(Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("a", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	if err := builder.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(builder.tempDir); !os.IsNotExist(err) {
		t.Errorf("temporary dir still present: %v", err)
	}
}

func TestBinaryInt64(t *testing.T) {
	for _, v := range []int64{0, 1, 4096, -7, 1 << 40} {
		bts := int64ToBinary(v)
		if len(bts) != HeaderSizeNumberLength {
			t.Fatalf("encoded %d into %d bytes", v, len(bts))
		}
		got, err := binaryToint64(bts)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("expected %d, got %d", v, got)
		}
	}
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/mmap"

	"github.com/devblok/koruvr/utility/kar"
)

func writeArchive(t *testing.T) string {
	dir, err := ioutil.TempDir("", "karTest")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "opentest.kar")
	data := buildArchive(t, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenFile(t *testing.T) {
	path := writeArchive(t)
	defer os.RemoveAll(filepath.Dir(path))

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test/test1.txt"); err != nil {
		t.Error(err)
	} else if strings.Compare("this is a test", string(f)) != 0 {
		t.Error("result is not expected value")
	}
}

func TestOpenmmap(t *testing.T) {
	path := writeArchive(t)
	defer os.RemoveAll(filepath.Dir(path))

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test/test1.txt"); err != nil {
		t.Error(err)
	} else if strings.Compare("this is a test", string(f)) != 0 {
		t.Error("result is not expected value")
	}

	if f, err := ar.ReadAll("test/test2.txt"); err != nil {
		t.Error(err)
	} else if strings.Compare("this is another test", string(f)) != 0 {
		t.Error("result is not expected value")
	}
}

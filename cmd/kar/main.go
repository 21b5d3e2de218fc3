// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	units "github.com/docker/go-units"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"

	"github.com/devblok/koruvr/core"
	"github.com/devblok/koruvr/utility/kar"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil {
		currentUserName = u.Username
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the archive given")
	compress        = flag.String("c", "", "Compress the given folder")
	patches         = flag.String("p", "", "Pack the vertex shader patches (VS_<hash>.spv) of the given folder")
	list            = flag.String("l", "", "List the contents of the archive given")
	dstFile         = flag.String("f", "out.kar", "Destination file, or directory when extracting")
	silent          = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}
	if *author == "" {
		*author = currentUserName
	}

	var ops int
	for _, op := range []string{*extract, *compress, *patches, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		log.Fatal(errors.New("only one operation at a time"))
	}

	var err error
	switch {
	case *compress != "":
		err = compressFiles(*compress)
	case *patches != "":
		err = packPatches(*patches)
	case *extract != "":
		err = extractFiles(*extract)
	case *list != "":
		err = listFiles(*list)
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func compressFiles(dir string) error {
	files := make(map[string]string)
	if err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(name)] = path
		return nil
	}); err != nil {
		return err
	}
	return build(files)
}

func packPatches(dir string) error {
	found, err := core.ShaderPatchFiles(dir)
	if err != nil {
		return err
	}
	files := make(map[string]string, len(found))
	for key, path := range found {
		files[core.PatchName(key)] = path
	}
	return build(files)
}

func build(files map[string]string) error {
	if _, err := os.Stat(*dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	karBuilder, err := kar.NewBuilder(kar.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, err := os.Open(files[name])
		if err != nil {
			return err
		}
		err = karBuilder.Add(name, f)
		f.Close()
		if err != nil {
			return err
		}
		log.WithField("file", name).Debug("added")
	}

	dst, err := os.Create(*dstFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	written, err := karBuilder.WriteTo(dst)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"files": len(names),
		"size":  units.HumanSize(float64(written)),
	}).Info("archive written to " + *dstFile)
	return nil
}

func openArchive(path string) (*kar.Archive, *mmap.ReaderAt, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return ar, r, nil
}

func extractFiles(path string) error {
	ar, r, err := openArchive(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, name := range ar.Files() {
		data, err := ar.ReadAll(name)
		if err != nil {
			return err
		}
		target := filepath.Join(*dstFile, filepath.FromSlash(name))
		if rel, err := filepath.Rel(*dstFile, target); err != nil || strings.HasPrefix(rel, "..") {
			return errors.New("refusing to extract outside of destination: " + name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := ioutil.WriteFile(target, data, 0644); err != nil {
			return err
		}
		log.WithField("file", target).Debug("extracted")
	}
	return nil
}

func listFiles(path string) error {
	ar, r, err := openArchive(path)
	if err != nil {
		return err
	}
	defer r.Close()

	header := ar.Header()
	log.WithFields(log.Fields{
		"author":  header.Author,
		"version": header.Version,
		"created": time.Unix(header.DateCreated, 0).Format(time.RFC3339),
	}).Info(path)
	for _, name := range ar.Files() {
		e, _ := ar.Stat(name)
		log.WithFields(log.Fields{
			"size":       units.HumanSize(float64(e.Size)),
			"compressed": units.HumanSize(float64(e.CompressedSize)),
		}).Info(name)
	}
	return nil
}

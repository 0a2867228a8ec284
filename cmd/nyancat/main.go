// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"

	"github.com/maharmstone/nyan/authenticode"
	"github.com/maharmstone/nyan/catalog"
)

var (
	verbose    bool
	outPath    string
	algName    string
	pageHashes bool
	identHex   string
	catExts    []string
)

func parseExtension(spec string) (catalog.Extension, error) {
	parts := strings.SplitN(spec, "=", 3)
	if len(parts) != 3 {
		return catalog.Extension{}, fmt.Errorf("extension %q: want name=flags=value", spec)
	}
	flags, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return catalog.Extension{}, fmt.Errorf("extension %q: bad flags: %w", spec, err)
	}
	return catalog.Extension{Name: parts[0], Flags: uint32(flags), Value: parts[2]}, nil
}

func algorithm(name string) (authenticode.Algorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return authenticode.SHA1, nil
	case "sha256":
		return authenticode.SHA256, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q (want sha1 or sha256)", name)
	}
}

func randomIdentifier() ([]byte, error) {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return id, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	helper := log.NewHelper(log.NewFilter(
		log.NewStdLogger(os.Stderr), log.FilterLevel(levelFor(verbose))))

	alg, err := algorithm(algName)
	if err != nil {
		return err
	}

	var identifier []byte
	if identHex != "" {
		identifier = []byte(identHex)
	} else {
		identifier, err = randomIdentifier()
		if err != nil {
			return fmt.Errorf("generating catalogue identifier: %w", err)
		}
	}

	exts := make([]catalog.Extension, 0, len(catExts))
	for _, spec := range catExts {
		ext, err := parseExtension(spec)
		if err != nil {
			return err
		}
		exts = append(exts, ext)
	}

	entries := make([]catalog.Entry, len(args))
	for i, path := range args {
		entries[i] = catalog.Entry{Path: path}
	}

	helper.Infof("building catalogue from %d entries, algorithm=%s", len(entries), alg)

	der, err := catalog.Build(catalog.Catalogue{
		Identifier: identifier,
		Timestamp:  time.Now().UTC(),
		Algorithm:  alg,
		PageHashes: pageHashes,
		Entries:    entries,
		Extensions: exts,
	})
	if err != nil {
		return fmt.Errorf("building catalogue: %w", err)
	}

	if err := os.WriteFile(outPath, der, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	helper.Infof("wrote %s (%d bytes)", outPath, len(der))
	return nil
}

func levelFor(verbose bool) log.Level {
	if verbose {
		return log.LevelDebug
	}
	return log.LevelWarn
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "nyancat",
		Short: "Builds Microsoft security catalogue (.cat) files",
		Long:  "nyancat computes Authenticode digests and assembles unsigned PKCS#7 security catalogues from a list of files.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("nyancat 0.0.1")
		},
	}

	buildCmd := &cobra.Command{
		Use:   "build [files...]",
		Short: "Build a catalogue covering one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBuild,
	}
	buildCmd.Flags().StringVarP(&outPath, "out", "o", "out.cat", "output catalogue path")
	buildCmd.Flags().StringVarP(&algName, "algorithm", "a", "sha256", "digest algorithm: sha1 (v1 catalogue) or sha256 (v2 catalogue)")
	buildCmd.Flags().BoolVar(&pageHashes, "page-hashes", false, "embed page-hash sequences for PE entries")
	buildCmd.Flags().StringVar(&identHex, "id", "", "catalogue identifier (opaque string; random 16 bytes when omitted)")
	buildCmd.Flags().StringArrayVar(&catExts, "ext", nil, "catalogue-level extension, repeatable: name=flags=value")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(buildCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readListFile reads genome paths from a list file, one per line.
// Blank lines and #-comments are skipped. Relative paths are resolved
// against the list file's directory.
func readListFile(path string) (files []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open list file: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list file: %w", err)
	}

	return files, nil
}

// gatherInputs combines positional genome arguments with an optional
// list file and checks that every path exists.
func gatherInputs(args []string, listfile string) ([]string, error) {
	files := append([]string{}, args...)

	if listfile != "" {
		listed, err := readListFile(listfile)
		if err != nil {
			return nil, err
		}
		files = append(files, listed...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no input genomes given")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("failed to find input file %s", f)
		}
	}

	return files, nil
}

// fileLabel derives a query label from a genome path: the base name
// with sequence-file extensions stripped.
func fileLabel(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(name, ".gz") {
		name = name[:len(name)-len(".gz")]
	}
	for _, ext := range []string{".fasta", ".fa", ".fna"} {
		if strings.HasSuffix(name, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

func fileLabels(files []string) []string {
	labels := make([]string, len(files))
	for i, f := range files {
		labels[i] = fileLabel(f)
	}
	return labels
}

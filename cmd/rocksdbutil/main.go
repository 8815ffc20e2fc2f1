// Command rocksdbutil provides offline administration of a database
// directory, most notably reducing the number of levels it uses.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/db"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rocksdbutil command [options]

Commands:
  reduce-levels --db=PATH --new-levels=N [--no-compaction] [--options=FILE]
        rewrite the database to use at most N levels
  levels --db=PATH [--options=FILE]
        print the number of files at each level
  scan --db=PATH [--options=FILE]
        print every key/value pair
`)
	os.Exit(1)
}

// optionsConfig is the YAML form of the tunables an operator may want
// to override from a file.
type optionsConfig struct {
	WriteBufferSize    int    `yaml:"write_buffer_size"`
	MaxOpenFiles       int    `yaml:"max_open_files"`
	BlockSize          int    `yaml:"block_size"`
	MaxFileSize        int    `yaml:"max_file_size"`
	Compression        string `yaml:"compression"`
	ParanoidChecks     bool   `yaml:"paranoid_checks"`
	NumLevels          int    `yaml:"num_levels"`
	MaxMemCompactLevel int    `yaml:"max_mem_compact_level"`
}

func loadOptions(path string) (*rocksdb.Options, error) {
	options := rocksdb.NewOptions()
	if path == "" {
		return options, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config optionsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if config.WriteBufferSize > 0 {
		options.WriteBufferSize = config.WriteBufferSize
	}
	if config.MaxOpenFiles > 0 {
		options.MaxOpenFiles = config.MaxOpenFiles
	}
	if config.BlockSize > 0 {
		options.BlockSize = config.BlockSize
	}
	if config.MaxFileSize > 0 {
		options.MaxFileSize = config.MaxFileSize
	}
	if config.NumLevels > 0 {
		options.NumLevels = config.NumLevels
	}
	if config.MaxMemCompactLevel > 0 {
		options.MaxMemCompactLevel = config.MaxMemCompactLevel
	}
	options.ParanoidChecks = config.ParanoidChecks
	switch config.Compression {
	case "", "snappy":
		options.Compression = rocksdb.SnappyCompression
	case "none":
		options.Compression = rocksdb.NoCompression
	default:
		return nil, fmt.Errorf("unknown compression %q", config.Compression)
	}
	return options, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "rocksdbutil: %v\n", err)
	os.Exit(1)
}

func reduceLevelsCommand(args []string) {
	fs := flag.NewFlagSet("reduce-levels", flag.ExitOnError)
	dbname := fs.String("db", "", "database directory")
	newLevels := fs.Int("new-levels", 0, "number of levels to reduce to")
	noCompaction := fs.Bool("no-compaction", false, "fail instead of moving data")
	optionsFile := fs.String("options", "", "YAML options file")
	_ = fs.Parse(args)
	if *dbname == "" || *newLevels == 0 {
		usage()
	}
	options, err := loadOptions(*optionsFile)
	if err != nil {
		fail(err)
	}
	if err := db.ReduceLevels(*dbname, options, *newLevels, !*noCompaction); err != nil {
		fail(err)
	}
	fmt.Printf("reduced %s to %d levels\n", *dbname, *newLevels)
}

func openForInspection(args []string, name string) (rocksdb.DB, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dbname := fs.String("db", "", "database directory")
	optionsFile := fs.String("options", "", "YAML options file")
	_ = fs.Parse(args)
	if *dbname == "" {
		usage()
	}
	options, err := loadOptions(*optionsFile)
	if err != nil {
		fail(err)
	}
	handle, err := db.Open(*dbname, options)
	if err != nil {
		fail(err)
	}
	return handle, *dbname
}

func levelsCommand(args []string) {
	handle, dbname := openForInspection(args, "levels")
	defer handle.Close()
	numLevels, ok := handle.GetProperty("rocksdb.num-levels")
	if !ok {
		fail(fmt.Errorf("%s: num-levels property unavailable", dbname))
	}
	fmt.Printf("%s: %s levels\n", dbname, numLevels)
	for level := 0; ; level++ {
		files, ok := handle.GetProperty(fmt.Sprintf("rocksdb.num-files-at-level%d", level))
		if !ok {
			break
		}
		fmt.Printf("  level %d: %s files\n", level, files)
	}
}

func scanCommand(args []string) {
	handle, _ := openForInspection(args, "scan")
	defer handle.Close()
	iter := handle.NewIterator(rocksdb.NewReadOptions())
	defer iter.Close()
	count := 0
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		fmt.Printf("%q -> %q\n", iter.Key(), iter.Value())
		count++
	}
	if err := iter.Status(); err != nil {
		fail(err)
	}
	fmt.Printf("%d entries\n", count)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "reduce-levels":
		reduceLevelsCommand(args)
	case "levels":
		levelsCommand(args)
	case "scan":
		scanCommand(args)
	default:
		usage()
	}
}

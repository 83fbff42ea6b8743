//go:build windows

// restable rewrites the hardcoded resolution table inside the game
// DLLs on disk. The game reads that table once, during DLL load,
// before any runtime interception can attach, so this is a one-time
// companion step to the live fixes.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/agent"
	"github.com/guwide/guwide/config"
)

// The stock table: fifteen width/height pairs from 800x600 up to
// 3840x2160, identical in every game DLL.
const stockTable = "20 03 00 00 58 02 00 00 " +
	"00 04 00 00 00 03 00 00 " +
	"00 05 00 00 D0 02 00 00 " +
	"00 05 00 00 20 03 00 00 " +
	"00 05 00 00 00 04 00 00 " +
	"50 05 00 00 00 03 00 00 " +
	"A0 05 00 00 84 03 00 00 " +
	"40 06 00 00 84 03 00 00 " +
	"40 06 00 00 B0 04 00 00 " +
	"90 06 00 00 1A 04 00 00 " +
	"80 07 00 00 38 04 00 00 " +
	"80 07 00 00 B0 04 00 00 " +
	"00 0A 00 00 A0 05 00 00 " +
	"00 0A 00 00 40 06 00 00 " +
	"00 0F 00 00 70 08 00 00"

const tableEntries = 15

var (
	dir        = flag.String("dir", ".", "directory holding the game DLLs")
	configPath = flag.String("config", "GuwideFix.yml", "configuration file")
	statePath  = flag.String("state", "patch.txt", "file recording the last written table")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath, guwide.DesktopResolution)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("resolution: %dx%d\n", cfg.Width, cfg.Height)

	// A previous run leaves its table in the state file; searching for
	// that instead of the stock table makes re-patching idempotent.
	search := stockTable
	if data, err := os.ReadFile(*statePath); err == nil {
		if line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]); line != "" {
			search = line
			fmt.Println("using table from", *statePath)
		}
	}

	pattern := guwide.ParsePattern(search)
	replacement := buildTable(cfg.Width, cfg.Height)

	var patched int
	for _, name := range agent.TargetModules {
		path := filepath.Join(*dir, name)
		if err := patchFile(path, pattern, replacement); err != nil {
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		patched++
	}
	if patched == 0 {
		return fmt.Errorf("no DLL patched; check -dir or reinstall the game")
	}

	if err := os.WriteFile(*statePath, []byte(tableString(replacement)+"\n"), 0o644); err != nil {
		return fmt.Errorf("record table: %w", err)
	}
	fmt.Printf("patched %d of %d DLLs\n", patched, len(agent.TargetModules))
	return nil
}

func buildTable(width, height int) []byte {
	table := make([]byte, 0, tableEntries*8)
	for i := 0; i < tableEntries; i++ {
		table = binary.LittleEndian.AppendUint32(table, uint32(width))
		table = binary.LittleEndian.AppendUint32(table, uint32(height))
	}
	return table
}

func tableString(table []byte) string {
	parts := make([]string, len(table))
	for i, b := range table {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func patchFile(path string, pattern guwide.Pattern, replacement []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	offset := pattern.Find(data)
	if offset < 0 {
		return fmt.Errorf("resolution table not found")
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(replacement, int64(offset)); err != nil {
		return err
	}
	fmt.Printf("%s: table at %#x rewritten\n", filepath.Base(path), offset)
	return nil
}

//go:build windows

// guwide attaches to a running .hack//G.U. Last Recode process and
// applies the widescreen fixes to whichever game volume DLL is loaded,
// re-applying them every time the game swaps volumes.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/agent"
	"github.com/guwide/guwide/config"
	"github.com/guwide/guwide/hook"
)

var (
	pid        = flag.Uint("pid", 0, "process id to attach to (0 = find by name)")
	exe        = flag.String("exe", "hackGU.exe", "process name to wait for when -pid is 0")
	configPath = flag.String("config", "GuwideFix.yml", "configuration file")
	logPath    = flag.String("log", "guwide.log", "log file")
	list       = flag.Bool("list", false, "list the target's modules and exit")
	regions    = flag.Bool("regions", false, "dump the target's memory map and exit")
	verbose    = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(io.MultiWriter(logFile, os.Stderr),
		&slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath, guwide.DesktopResolution)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log(log)

	targetPid := uint32(*pid)
	if targetPid == 0 {
		log.Info("waiting for process", "name", *exe)
		for targetPid == 0 {
			targetPid, err = guwide.FindProcess(*exe)
			if err != nil {
				return fmt.Errorf("find process: %w", err)
			}
			if targetPid == 0 {
				time.Sleep(time.Second)
			}
		}
	}
	log.Info("attaching", "pid", targetPid)

	proc, err := guwide.OpenProcess(targetPid, guwide.HostAccess)
	if err != nil {
		return fmt.Errorf("open process %d: %w", targetPid, err)
	}
	defer proc.Close()

	if *list {
		mods, err := proc.Modules()
		if err != nil {
			return err
		}
		for _, m := range mods {
			fmt.Printf("%16x %8x %s\n", m.BaseOfDll, m.SizeOfImage, m.Name)
		}
		return nil
	}

	if *regions {
		for _, r := range proc.Regions() {
			if r.IsCommitted() {
				fmt.Println(r.String())
			}
		}
		return nil
	}

	// the debug event loop must stay on the OS thread that attached
	runtime.LockOSThread()

	reg := hook.NewRegistry(proc, proc)
	loop := hook.NewDebugLoop(proc, reg, log)
	if err := loop.Attach(); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer loop.Detach()

	a := agent.New(agent.NewWatcher(proc, log), proc, reg, cfg, log)
	go a.Run()

	return loop.Run()
}

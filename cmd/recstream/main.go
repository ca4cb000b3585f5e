package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backtrace-labs/stuffed-record-stream/internal/retention"
	"github.com/backtrace-labs/stuffed-record-stream/internal/segstream"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "append":
		runAppend(os.Args[2:])
	case "dump":
		runDump(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: recstream append -dir DIR -gen N PAYLOAD...")
	fmt.Fprintln(os.Stderr, "       recstream dump -dir DIR")
	fmt.Fprintln(os.Stderr, "       recstream serve -dir DIR [-max-age DURATION] [-max-bytes N]")
}

func runAppend(args []string) {
	fs := flag.NewFlagSet("append", flag.ExitOnError)
	dir := fs.String("dir", "", "segment directory")
	gen := fs.Uint("gen", 0, "record generation")
	fs.Parse(args)

	if *dir == "" || fs.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	l, err := segstream.Open(segstream.DefaultConfig(*dir))
	if err != nil {
		log.Fatalf("recstream: open %s: %v", *dir, err)
	}
	defer l.Close()

	for _, payload := range fs.Args() {
		if err := l.Append(uint32(*gen), []byte(payload)); err != nil {
			log.Fatalf("recstream: append: %v", err)
		}
	}
	log.Printf("appended %d record(s) to %s", fs.NArg(), *dir)
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dir := fs.String("dir", "", "segment directory")
	fs.Parse(args)

	if *dir == "" {
		usage()
		os.Exit(2)
	}

	l, err := segstream.Open(segstream.DefaultConfig(*dir))
	if err != nil {
		log.Fatalf("recstream: open %s: %v", *dir, err)
	}
	defer l.Close()

	count := 0
	err = l.Replay(func(segmentBaseOffset int64, generation uint32, payload []byte) error {
		fmt.Printf("%d\t%d\t%s\n", segmentBaseOffset, generation, payload)
		count++
		return nil
	})
	if err != nil {
		log.Fatalf("recstream: replay: %v", err)
	}
	log.Printf("dumped %d record(s) from %s", count, *dir)
}

// runServe keeps a log open and under active retention, the way
// cmd/broker/main.go keeps a partition open under its own retention
// cleaner for the life of the process, until interrupted.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dir := fs.String("dir", "", "segment directory")
	maxAge := fs.Duration("max-age", 0, "delete closed segments older than this (0 disables age-based retention)")
	maxBytes := fs.Int64("max-bytes", 0, "delete closed segments once total size exceeds this (0 disables size-based retention)")
	checkInterval := fs.Duration("check-interval", 5*time.Minute, "how often to sweep for retention breaches")
	fs.Parse(args)

	if *dir == "" {
		usage()
		os.Exit(2)
	}

	log.Printf("[Init] Opening segment log at %s...", *dir)
	l, err := segstream.Open(segstream.DefaultConfig(*dir))
	if err != nil {
		log.Fatalf("recstream: open %s: %v", *dir, err)
	}
	defer l.Close()

	log.Printf("[Init] Starting retention cleaner (interval=%s, max-age=%s, max-bytes=%d)...",
		*checkInterval, *maxAge, *maxBytes)
	cleaner := retention.New(retention.Config{
		CheckInterval: *checkInterval,
		MaxAge:        *maxAge,
		MaxTotalBytes: *maxBytes,
	})
	cleaner.Register(l)
	cleaner.Start()
	defer cleaner.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("[Main] Shutting down %s...", *dir)
}

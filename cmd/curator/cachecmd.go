package main

import (
	"context"
	"fmt"
	"os"

	"curator/pkg/cache"
	"curator/pkg/codec"
)

func runCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: curator cache <lookup|list|delete|purge|stats> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "lookup":
		return runCacheLookup(rest)
	case "list":
		return runCacheList(rest)
	case "delete":
		return runCacheDelete(rest)
	case "purge":
		return runCachePurge(rest)
	case "stats":
		return runCacheStats(rest)
	default:
		return fmt.Errorf("unknown cache subcommand %q", sub)
	}
}

// payloadSignature reads a payload and reduces it to its cache signature.
func payloadSignature(file string, asJSON bool) (string, error) {
	text, err := readInput(file)
	if err != nil {
		return "", err
	}
	payload, err := parsePayload(text, asJSON)
	if err != nil {
		return "", err
	}
	return cache.Signature(payload), nil
}

func runCacheLookup(args []string) error {
	fs, workDir := newFlagSet("curator cache lookup")
	file := fs.String("file", "-", "Payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Payload is JSON instead of compact text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	signature, err := payloadSignature(*file, *asJSON)
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	resolution, hit, err := a.cache.Lookup(context.Background(), signature)
	if err != nil {
		return err
	}
	if !hit {
		fmt.Println("MISS")
		return nil
	}
	fmt.Println(codec.Encode(resolution))
	return nil
}

func runCacheList(args []string) error {
	fs, workDir := newFlagSet("curator cache list")
	limit := fs.Int("n", 20, "Maximum entries to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.cache.List(context.Background(), *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	tbl := newTable("SIGNATURE", "SOURCE", "HITS", "UPDATED")
	for _, entry := range entries {
		tbl.addRow(oneLine(entry.Signature), entry.Source,
			fmt.Sprintf("%d", entry.HitCount), displayTime(entry.UpdatedAt))
	}
	tbl.print(os.Stdout)
	return nil
}

func runCacheDelete(args []string) error {
	fs, workDir := newFlagSet("curator cache delete")
	file := fs.String("file", "-", "Payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Payload is JSON instead of compact text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	signature, err := payloadSignature(*file, *asJSON)
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	existed, err := a.cache.Delete(context.Background(), signature)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Println("No cache entry for that payload.")
		return nil
	}
	a.mirror("cache_deleted", "", "", "")

	fmt.Println("Deleted cache entry.")
	return nil
}

func runCachePurge(args []string) error {
	fs, workDir := newFlagSet("curator cache purge")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	dropped, err := a.cache.Purge(context.Background())
	if err != nil {
		return err
	}
	a.mirror("cache_purged", "", "", fmt.Sprintf("dropped=%d", dropped))

	fmt.Printf("Purged %d cache entries\n", dropped)
	return nil
}

func runCacheStats(args []string) error {
	fs, workDir := newFlagSet("curator cache stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.cache.GetStats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Entries:    %d (%d human, %d auto)\n",
		stats.Entries, stats.HumanEntries, stats.AutoEntries)
	fmt.Printf("Total hits: %d\n", stats.TotalHits)
	return nil
}

// oneLine flattens a multi-line signature for table display.
func oneLine(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' {
			out = append(out, ' ')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

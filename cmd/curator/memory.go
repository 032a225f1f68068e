package main

import (
	"context"
	"fmt"
	"strings"

	"curator/pkg/codec"
	"curator/pkg/persistence"
	"curator/pkg/utils"
)

func runMemory(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: curator memory <show|append|compact|stats> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "show":
		return runMemoryShow(rest)
	case "append":
		return runMemoryAppend(rest)
	case "compact":
		return runMemoryCompact(rest)
	case "stats":
		return runMemoryStats(rest)
	default:
		return fmt.Errorf("unknown memory subcommand %q", sub)
	}
}

func runMemoryShow(args []string) error {
	fs, workDir := newFlagSet("curator memory show")
	jobID := fs.String("job", "", "Job ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.memory.GetWorkingMemory(context.Background(), *jobID)
	if err != nil {
		return err
	}
	if snap.Summary == nil && len(snap.Entries) == 0 {
		fmt.Println("Working memory is empty.")
		return nil
	}

	if snap.Summary != nil {
		printEntry(snap.Summary)
	}
	for _, entry := range snap.Entries {
		printEntry(entry)
	}
	return nil
}

func printEntry(entry *persistence.HistoryEntry) {
	fmt.Printf("[%s] entry %d, %d tokens, %s\n",
		entry.Role, entry.ID, entry.TokenEstimate, displayTime(entry.CreatedAt))
	fmt.Println(indent(entry.Content))
}

func runMemoryAppend(args []string) error {
	fs, workDir := newFlagSet("curator memory append")
	jobID := fs.String("job", "", "Job ID (required)")
	role := fs.String("role", "user", "Entry role")
	file := fs.String("file", "-", "Content file, or - for stdin")
	format := fs.String("format", "text", "Content format: text, codec, or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}

	text, err := readInput(*file)
	if err != nil {
		return err
	}
	var content codec.Value
	switch *format {
	case "text":
		content = codec.String(strings.TrimRight(text, "\n"))
	case "codec":
		content, err = parsePayload(text, false)
	case "json":
		content, err = parsePayload(text, true)
	default:
		return fmt.Errorf("unknown format %q: want text, codec, or json", *format)
	}
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.memory.Append(context.Background(), *jobID, *role, content)
	if err != nil {
		return err
	}
	a.mirror("memory_appended", *jobID, "", fmt.Sprintf("entry=%d tokens=%d", entry.ID, entry.TokenEstimate))

	fmt.Printf("Appended entry %d (%d tokens)\n", entry.ID, entry.TokenEstimate)
	return nil
}

func runMemoryCompact(args []string) error {
	fs, workDir := newFlagSet("curator memory compact")
	jobID := fs.String("job", "", "Job ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.memory.Compact(context.Background(), *jobID)
	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Println("Nothing to compact.")
		return nil
	}
	a.mirror("history_compacted", *jobID, "", fmt.Sprintf("summary=%d tokens=%d", summary.ID, summary.TokenEstimate))

	fmt.Printf("Compacted history into entry %d (%d tokens)\n", summary.ID, summary.TokenEstimate)
	return nil
}

func runMemoryStats(args []string) error {
	fs, workDir := newFlagSet("curator memory stats")
	jobID := fs.String("job", "", "Job ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	stats, err := a.memory.Stats(ctx, *jobID)
	if err != nil {
		return err
	}

	fmt.Printf("Job:            %s\n", stats.JobID)
	fmt.Printf("Active tokens:  %d / %d budget (%.0f%%)\n",
		stats.ActiveTokens, stats.BudgetTokens, stats.Utilization*100)
	fmt.Printf("Threshold:      %d\n", stats.Threshold)
	fmt.Printf("Entries:        %d active, %d total\n", stats.ActiveEntries, stats.TotalEntries)
	fmt.Printf("Should compact: %v\n", stats.ShouldCompact)

	// The stored estimate drives the budget; a model count is display only.
	if a.cfg.Memory.Tokenizer != "" {
		counter, err := utils.NewTokenCounter(a.cfg.Memory.Tokenizer)
		if err != nil {
			return err
		}
		snap, err := a.memory.GetWorkingMemory(ctx, *jobID)
		if err != nil {
			return err
		}
		var sb strings.Builder
		if snap.Summary != nil {
			sb.WriteString(snap.Summary.Content)
			sb.WriteString("\n")
		}
		for _, entry := range snap.Entries {
			sb.WriteString(entry.Content)
			sb.WriteString("\n")
		}
		fmt.Printf("Model tokens:   %d (%s, advisory)\n",
			counter.CountTokens(sb.String()), a.cfg.Memory.Tokenizer)
	}
	return nil
}

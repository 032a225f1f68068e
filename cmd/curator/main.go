// Curator is the command-line surface over the extraction review store:
// job lifecycle, the review queue, the mapping cache, working memory, and
// checkpoints. Every command wires its components explicitly from the
// workspace config; there is no daemon and no global state outside the
// database.
package main

import (
	"fmt"
	"os"

	"curator/pkg/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "jobs":
		err = runJobs(args)
	case "checkpoint":
		err = runCheckpoint(args)
	case "submit":
		err = runSubmit(args)
	case "list":
		err = runList(args)
	case "show":
		err = runShow(args)
	case "approve":
		err = runApprove(args)
	case "reject":
		err = runReject(args)
	case "answer":
		err = runAnswer(args)
	case "supersede":
		err = runSupersede(args)
	case "batch-approve":
		err = runBatchApprove(args)
	case "batch-reject":
		err = runBatchReject(args)
	case "memory":
		err = runMemory(args)
	case "cache":
		err = runCache(args)
	case "stats":
		err = runStats(args)
	case "events":
		err = runEvents(args)
	case "encode":
		err = runEncode(args)
	case "decode":
		err = runDecode(args)
	case "version":
		fmt.Println(version.String())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Curator - Extraction Review Queue\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  curator <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Workspace:\n")
	fmt.Fprintf(os.Stderr, "  init                   Create .curator/config.yaml, logs/, and the database\n")
	fmt.Fprintf(os.Stderr, "  version                Show version information\n\n")
	fmt.Fprintf(os.Stderr, "Jobs:\n")
	fmt.Fprintf(os.Stderr, "  jobs create|list|show|pause|resume|complete|fail\n")
	fmt.Fprintf(os.Stderr, "  checkpoint save|restore|list\n\n")
	fmt.Fprintf(os.Stderr, "Review queue:\n")
	fmt.Fprintf(os.Stderr, "  submit                 Submit a payload for review\n")
	fmt.Fprintf(os.Stderr, "  list                   List a job's items\n")
	fmt.Fprintf(os.Stderr, "  show                   Show one item in full\n")
	fmt.Fprintf(os.Stderr, "  approve|reject         Resolve a pending item\n")
	fmt.Fprintf(os.Stderr, "  answer                 Answer an open clarification\n")
	fmt.Fprintf(os.Stderr, "  supersede              File a correction for a resolved item\n")
	fmt.Fprintf(os.Stderr, "  batch-approve|batch-reject\n\n")
	fmt.Fprintf(os.Stderr, "Memory and cache:\n")
	fmt.Fprintf(os.Stderr, "  memory show|append|compact|stats\n")
	fmt.Fprintf(os.Stderr, "  cache lookup|list|delete|purge|stats\n\n")
	fmt.Fprintf(os.Stderr, "Observability:\n")
	fmt.Fprintf(os.Stderr, "  stats                  Per-job queue statistics\n")
	fmt.Fprintf(os.Stderr, "  events tail            Print recent operational events\n\n")
	fmt.Fprintf(os.Stderr, "Data:\n")
	fmt.Fprintf(os.Stderr, "  encode                 JSON to compact text\n")
	fmt.Fprintf(os.Stderr, "  decode                 Compact text to JSON\n\n")
	fmt.Fprintf(os.Stderr, "Run 'curator <command> -h' for command flags.\n")
}

package main

import (
	"context"
	"fmt"
	"os"

	"curator/pkg/contextmgr"
	"curator/pkg/persistence"
)

func runJobs(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: curator jobs <create|list|show|pause|resume|complete|fail> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "create":
		return runJobsCreate(rest)
	case "list":
		return runJobsList(rest)
	case "show":
		return runJobsShow(rest)
	case "pause", "resume", "complete", "fail":
		return runJobsTransition(sub, rest)
	default:
		return fmt.Errorf("unknown jobs subcommand %q", sub)
	}
}

func runJobsCreate(args []string) error {
	fs, workDir := newFlagSet("curator jobs create")
	source := fs.String("source", "", "Source document label (required)")
	meta := fs.String("meta", "", "Optional metadata JSON blob")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" {
		return fmt.Errorf("-source is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	var metadata *string
	if *meta != "" {
		metadata = meta
	}
	job, err := a.jobs.Create(context.Background(), *source, metadata)
	if err != nil {
		return err
	}
	a.mirror("job_created", job.ID, "", fmt.Sprintf("source=%s", job.SourceLabel))

	fmt.Printf("Created job %s for %s\n", job.ID, job.SourceLabel)
	return nil
}

func runJobsList(args []string) error {
	fs, workDir := newFlagSet("curator jobs list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.jobs.List(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No jobs.")
		return nil
	}

	tbl := newTable("JOB", "STATUS", "SOURCE", "UPDATED")
	for _, job := range list {
		tbl.addRow(job.ID, job.Status, job.SourceLabel, displayTime(job.UpdatedAt))
	}
	tbl.print(os.Stdout)
	return nil
}

func runJobsShow(args []string) error {
	fs, workDir := newFlagSet("curator jobs show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator jobs show <job-id>")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	job, err := a.jobs.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Job:     %s\n", job.ID)
	fmt.Printf("Status:  %s\n", job.Status)
	fmt.Printf("Source:  %s\n", job.SourceLabel)
	fmt.Printf("Created: %s\n", displayTime(job.CreatedAt))
	fmt.Printf("Updated: %s\n", displayTime(job.UpdatedAt))
	if job.Metadata != nil {
		fmt.Printf("Meta:    %s\n", *job.Metadata)
	}

	stats, err := a.queue.Stats(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Items:   %d total", stats.Total)
	order := []string{
		persistence.StatusPending,
		persistence.StatusNeedsClarification,
		persistence.StatusApproved,
		persistence.StatusRejected,
	}
	for _, status := range order {
		if n := stats.ByStatus[status]; n > 0 {
			fmt.Printf(", %d %s", n, status)
		}
	}
	fmt.Println()
	return nil
}

func runJobsTransition(verb string, args []string) error {
	fs, workDir := newFlagSet("curator jobs " + verb)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator jobs %s <job-id>", verb)
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	jobID := fs.Arg(0)
	var job *persistence.Job
	switch verb {
	case "pause":
		job, err = a.jobs.Pause(ctx, jobID)
	case "resume":
		job, err = a.jobs.Resume(ctx, jobID)
	case "complete":
		job, err = a.jobs.Complete(ctx, jobID)
	case "fail":
		job, err = a.jobs.Fail(ctx, jobID)
	}
	if err != nil {
		return err
	}
	a.mirror("job_status_changed", job.ID, "", fmt.Sprintf("status=%s", job.Status))

	fmt.Printf("Job %s is now %s\n", job.ID, job.Status)
	return nil
}

func runCheckpoint(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: curator checkpoint <save|restore|list> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "save":
		return runCheckpointSave(rest)
	case "restore":
		return runCheckpointRestore(rest)
	case "list":
		return runCheckpointList(rest)
	default:
		return fmt.Errorf("unknown checkpoint subcommand %q", sub)
	}
}

func runCheckpointSave(args []string) error {
	fs, workDir := newFlagSet("curator checkpoint save")
	jobID := fs.String("job", "", "Job ID (required)")
	label := fs.String("label", "", "Checkpoint label (default: snapshot)")
	file := fs.String("file", "-", "State file, or - for stdin")
	memory := fs.Bool("memory", false, "Capture the job's working memory as the state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}
	if *memory && *file != "-" {
		return fmt.Errorf("use -memory or -file, not both")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	var state string
	if *memory {
		snap, err := a.memory.GetWorkingMemory(context.Background(), *jobID)
		if err != nil {
			return err
		}
		state, err = contextmgr.EncodeSnapshot(snap)
		if err != nil {
			return err
		}
	} else {
		state, err = readInput(*file)
		if err != nil {
			return err
		}
	}

	cp, err := a.jobs.SaveCheckpoint(context.Background(), *jobID, *label, state)
	if err != nil {
		return err
	}
	a.mirror("checkpoint_saved", *jobID, "", fmt.Sprintf("label=%s hash=%s", cp.Label, cp.ContentHash[:12]))

	fmt.Printf("Saved checkpoint %s (label %s, hash %s)\n", cp.ID, cp.Label, cp.ContentHash[:12])
	return nil
}

func runCheckpointRestore(args []string) error {
	fs, workDir := newFlagSet("curator checkpoint restore")
	jobID := fs.String("job", "", "Job ID (required)")
	out := fs.String("out", "", "File to write the state to (default: stdout)")
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

	cp, err := a.jobs.RestoreCheckpoint(context.Background(), *jobID)
	if err != nil {
		if cp != nil {
			// Hash mismatch: the state came back but cannot be trusted.
			fmt.Fprintf(os.Stderr, "Checkpoint %s (label %s) failed verification\n", cp.ID, cp.Label)
		}
		return err
	}
	a.mirror("checkpoint_restored", *jobID, "", fmt.Sprintf("label=%s", cp.Label))

	if *out != "" {
		if err := os.WriteFile(*out, []byte(cp.State), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", *out, err)
		}
		fmt.Printf("Restored checkpoint %s (label %s) to %s\n", cp.ID, cp.Label, *out)
		return nil
	}
	fmt.Print(cp.State)
	if len(cp.State) > 0 && cp.State[len(cp.State)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

func runCheckpointList(args []string) error {
	fs, workDir := newFlagSet("curator checkpoint list")
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

	cps, err := a.jobs.GetCheckpoints(context.Background(), *jobID)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}

	tbl := newTable("CHECKPOINT", "LABEL", "HASH", "CREATED")
	for _, cp := range cps {
		tbl.addRow(cp.ID, cp.Label, cp.ContentHash[:12], displayTime(cp.CreatedAt))
	}
	tbl.print(os.Stdout)
	return nil
}

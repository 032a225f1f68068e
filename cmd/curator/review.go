package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"curator/pkg/codec"
	"curator/pkg/persistence"
	"curator/pkg/review"
)

func runSubmit(args []string) error {
	fs, workDir := newFlagSet("curator submit")
	jobID := fs.String("job", "", "Job ID (required)")
	source := fs.String("source", "", "Source label for the payload (required)")
	file := fs.String("file", "-", "Payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Payload is JSON instead of compact text")
	confidence := fs.Float64("confidence", 1.0, "Producer confidence in [0,1]")
	threshold := fs.Float64("threshold", -1, "Review threshold (default: config value)")
	question := fs.String("question", "", "Clarification question on the miss path")
	contextNote := fs.String("context", "", "Extra context for the reviewer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}
	if *source == "" {
		return fmt.Errorf("-source is required")
	}

	text, err := readInput(*file)
	if err != nil {
		return err
	}
	payload, err := parsePayload(text, *asJSON)
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	req := &review.SubmitRequest{
		JobID:       *jobID,
		SourceLabel: *source,
		Payload:     payload,
		Confidence:  *confidence,
		Threshold:   *threshold,
		Question:    *question,
	}
	if *threshold < 0 {
		req.Threshold = a.cfg.Review.ConfidenceThreshold
	}
	if *contextNote != "" {
		req.Context = contextNote
	}

	item, err := a.queue.Submit(context.Background(), req)
	if err != nil {
		return err
	}
	a.mirror("item_submitted", item.JobID, item.ItemID, fmt.Sprintf("status=%s", item.Status))

	switch item.Status {
	case persistence.StatusApproved:
		fmt.Printf("Item %s auto-approved from cache\n", item.ItemID)
	case persistence.StatusNeedsClarification:
		fmt.Printf("Item %s needs clarification\n", item.ItemID)
		if c, cerr := a.queue.GetClarification(context.Background(), item.ItemID); cerr == nil {
			fmt.Printf("  Question: %s\n", c.Question)
		}
	default:
		fmt.Printf("Item %s pending review\n", item.ItemID)
	}
	return nil
}

func runList(args []string) error {
	fs, workDir := newFlagSet("curator list")
	jobID := fs.String("job", "", "Job ID (required)")
	status := fs.String("status", "", "Filter by status (default: pending)")
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
	var items []*persistence.ReviewItem
	if *status == "" {
		items, err = a.queue.GetPending(ctx, *jobID)
	} else {
		items, err = a.queue.GetByStatus(ctx, *jobID, *status)
	}
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	tbl := newTable("ITEM", "STATUS", "CONF", "SOURCE", "CREATED")
	for _, item := range items {
		conf := "-"
		if item.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *item.Confidence)
		}
		tbl.addRow(item.ItemID, item.Status, conf, item.SourceLabel, displayTime(item.CreatedAt))
	}
	tbl.print(os.Stdout)
	return nil
}

func runShow(args []string) error {
	fs, workDir := newFlagSet("curator show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator show <item-id>")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	item, err := a.queue.GetItem(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Item:    %s\n", item.ItemID)
	fmt.Printf("Job:     %s\n", item.JobID)
	fmt.Printf("Source:  %s\n", item.SourceLabel)
	fmt.Printf("Status:  %s\n", item.Status)
	if item.Confidence != nil {
		src := ""
		if item.ConfidenceSource != nil {
			src = " (" + *item.ConfidenceSource + ")"
		}
		fmt.Printf("Conf:    %.2f%s\n", *item.Confidence, src)
	}
	fmt.Printf("Created: %s\n", displayTime(item.CreatedAt))
	if item.ResolvedAt != nil {
		fmt.Printf("Resolved: %s\n", displayTime(*item.ResolvedAt))
	}
	if item.Supersedes != nil {
		fmt.Printf("Supersedes: %s\n", *item.Supersedes)
	}
	fmt.Printf("Payload:\n%s\n", indent(item.Payload))
	if item.ResolvedPayload != nil && *item.ResolvedPayload != item.Payload {
		fmt.Printf("Resolved payload:\n%s\n", indent(*item.ResolvedPayload))
	}
	if item.Feedback != nil {
		fmt.Printf("Feedback: %s\n", *item.Feedback)
	}

	if item.Status == persistence.StatusNeedsClarification {
		if c, cerr := a.queue.GetClarification(ctx, item.ItemID); cerr == nil {
			fmt.Printf("Question: %s\n", c.Question)
			if c.Context != nil {
				fmt.Printf("Context:  %s\n", *c.Context)
			}
		}
	}
	return nil
}

func runApprove(args []string) error {
	fs, workDir := newFlagSet("curator approve")
	override := fs.String("override", "", "Corrected payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Override payload is JSON instead of compact text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator approve [flags] <item-id>")
	}

	var overrideValue codec.Value
	if *override != "" {
		text, err := readInput(*override)
		if err != nil {
			return err
		}
		overrideValue, err = parsePayload(text, *asJSON)
		if err != nil {
			return err
		}
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.queue.Approve(context.Background(), fs.Arg(0), overrideValue)
	if err != nil {
		return err
	}
	a.mirror("item_approved", item.JobID, item.ItemID, "")

	fmt.Printf("Approved item %s\n", item.ItemID)
	return nil
}

func runReject(args []string) error {
	fs, workDir := newFlagSet("curator reject")
	feedback := fs.String("feedback", "", "Why the payload is wrong (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator reject -feedback <text> <item-id>")
	}
	if strings.TrimSpace(*feedback) == "" {
		return fmt.Errorf("-feedback is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.queue.Reject(context.Background(), fs.Arg(0), *feedback)
	if err != nil {
		return err
	}
	a.mirror("item_rejected", item.JobID, item.ItemID, *feedback)

	fmt.Printf("Rejected item %s\n", item.ItemID)
	return nil
}

func runAnswer(args []string) error {
	fs, workDir := newFlagSet("curator answer")
	answer := fs.String("answer", "", "Human answer text (required)")
	resolution := fs.String("resolution", "-", "Resolved payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Resolution payload is JSON instead of compact text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator answer -answer <text> [-resolution <file>] <item-id>")
	}
	if strings.TrimSpace(*answer) == "" {
		return fmt.Errorf("-answer is required")
	}

	text, err := readInput(*resolution)
	if err != nil {
		return err
	}
	value, err := parsePayload(text, *asJSON)
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.queue.AnswerClarification(context.Background(), fs.Arg(0), *answer, value)
	if err != nil {
		return err
	}
	a.mirror("item_clarified", item.JobID, item.ItemID, *answer)

	fmt.Printf("Answered item %s; resolution cached for future submissions\n", item.ItemID)
	return nil
}

func runSupersede(args []string) error {
	fs, workDir := newFlagSet("curator supersede")
	file := fs.String("file", "-", "Corrected payload file, or - for stdin")
	asJSON := fs.Bool("json", false, "Payload is JSON instead of compact text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: curator supersede [-file <file>] <item-id>")
	}

	text, err := readInput(*file)
	if err != nil {
		return err
	}
	payload, err := parsePayload(text, *asJSON)
	if err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	replacement, err := a.queue.Supersede(context.Background(), fs.Arg(0), payload)
	if err != nil {
		return err
	}
	a.mirror("item_superseded", replacement.JobID, fs.Arg(0),
		fmt.Sprintf("superseded by %s", replacement.ItemID))

	fmt.Printf("Filed correction %s for item %s\n", replacement.ItemID, fs.Arg(0))
	return nil
}

func runBatchApprove(args []string) error {
	fs, workDir := newFlagSet("curator batch-approve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: curator batch-approve <item-id>...")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.queue.BatchApprove(context.Background(), fs.Args())
	if err != nil {
		return err
	}
	a.mirror("batch_approved", "", "", fmt.Sprintf("count=%d", count))

	fmt.Printf("Approved %d of %d items\n", count, fs.NArg())
	return nil
}

func runBatchReject(args []string) error {
	fs, workDir := newFlagSet("curator batch-reject")
	feedback := fs.String("feedback", "", "Why the payloads are wrong (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: curator batch-reject -feedback <text> <item-id>...")
	}
	if strings.TrimSpace(*feedback) == "" {
		return fmt.Errorf("-feedback is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.queue.BatchReject(context.Background(), fs.Args(), *feedback)
	if err != nil {
		return err
	}
	a.mirror("batch_rejected", "", "", fmt.Sprintf("count=%d", count))

	fmt.Printf("Rejected %d of %d items\n", count, fs.NArg())
	return nil
}

// indent prefixes every line of a payload block for display.
func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

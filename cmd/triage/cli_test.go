package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/internal/review"
	"triage/internal/testsupport"
)

func writeTestConfig(t *testing.T, backendURL string) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q

[backend]
base_url = %q

[identity]
user_id = "reviewer-1"
roles = ["reviewer"]

[logging]
level = "error"
`, filepath.Join(base, "state"), filepath.Join(base, "logs"), backendURL)

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--config", configPath))
	err := cmd.Execute()
	return out.String(), err
}

func seedReviewQueue(t *testing.T) (*testsupport.Backend, string) {
	t.Helper()
	fake := testsupport.NewBackend(t, "reviewer-1")
	fake.AddQueue(review.Queue{
		ID:            "q1",
		Name:          "Payments",
		SortingLocked: true,
		AllowedLabels: []review.Label{review.LabelGood, review.LabelBad},
		Reviewers:     []string{"reviewer-1"},
		Size:          2,
	})
	fake.AddItem("q1", review.WorkItem{ID: "i1", Status: review.StatusAwaiting, Active: true})
	fake.AddItem("q1", review.WorkItem{ID: "i2", Status: review.StatusAwaiting, Active: true})
	return fake, writeTestConfig(t, fake.URL())
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q does not contain %q", haystack, needle)
	}
}

func TestQueuesCommandListsQueues(t *testing.T) {
	_, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "", "queues")
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	requireContains(t, out, "Payments")
	requireContains(t, out, "strict")
}

func TestQueueShowCommand(t *testing.T) {
	_, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "", "queues", "show", "q1")
	if err != nil {
		t.Fatalf("queues show: %v", err)
	}
	requireContains(t, out, "Payments")
	requireContains(t, out, "good, bad")
}

func TestItemsCommand(t *testing.T) {
	_, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "", "items", "q1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "i1")
	requireContains(t, out, "i2")
}

func TestLocksCommandEmpty(t *testing.T) {
	_, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "", "locks")
	if err != nil {
		t.Fatalf("locks: %v", err)
	}
	requireContains(t, out, "You hold no locks")
}

func TestReviewCommandLabelsItems(t *testing.T) {
	fake, configPath := seedReviewQueue(t)

	// Label the first item, then leave the loop with the second one
	// still locked; quit releases it.
	out, err := runCLI(t, configPath, "good\nquit\n", "review", "q1")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	requireContains(t, out, "Item i1")

	if status, _ := fake.ItemStatus("q1", "i1"); status != review.StatusGood {
		t.Fatalf("i1 status = %s, want good", status)
	}
	if status, _ := fake.ItemStatus("q1", "i2"); status != review.StatusAwaiting {
		t.Fatalf("i2 status = %s, want awaiting", status)
	}
	if _, locked := fake.LockOwner("i2"); locked {
		t.Fatal("quit should release the lock on i2")
	}
}

func TestReviewCommandReportsConflict(t *testing.T) {
	fake, configPath := seedReviewQueue(t)
	fake.LockItem("q1", "i1", "reviewer-2")

	out, err := runCLI(t, configPath, "", "review", "q1")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	requireContains(t, out, "locked by reviewer-2")
}

func TestReviewCommandStopsWhenStartupRefreshFails(t *testing.T) {
	configPath := writeTestConfig(t, "http://127.0.0.1:1")

	out, err := runCLI(t, configPath, "", "review", "q1")
	if err == nil {
		t.Fatal("review should fail when the backend is unreachable")
	}
	// The startup runner stops at the first failed refresh and names
	// what was left undone.
	requireContains(t, err.Error(), "refresh-regular-queues")
	requireContains(t, err.Error(), "refresh-escalation-queues")
	if strings.Contains(out, "Item ") {
		t.Fatalf("no item should be offered, got %q", out)
	}
}

func TestLabelBatchCommand(t *testing.T) {
	fake, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "",
		"label-batch", "q1", "--label", "bad", "--item", "i1", "--item", "i2")
	if err != nil {
		t.Fatalf("label-batch: %v", err)
	}
	requireContains(t, out, "2 item(s)")
	for _, id := range []string{"i1", "i2"} {
		if status, _ := fake.ItemStatus("q1", id); status != review.StatusBad {
			t.Fatalf("%s status = %s, want bad", id, status)
		}
	}
}

func TestLabelBatchReportsFailures(t *testing.T) {
	fake, configPath := seedReviewQueue(t)
	fake.LockItem("q1", "i2", "reviewer-2")

	out, err := runCLI(t, configPath, "",
		"label-batch", "q1", "--label", "bad", "--item", "i1", "--item", "i2")
	if err == nil {
		t.Fatal("label-batch should fail when an item cannot be labeled")
	}
	requireContains(t, out, "i2")
	if status, _ := fake.ItemStatus("q1", "i1"); status != review.StatusBad {
		t.Fatalf("i1 status = %s, want bad", status)
	}
}

func TestPrefsCommands(t *testing.T) {
	_, configPath := seedReviewQueue(t)

	out, err := runCLI(t, configPath, "", "prefs", "auto-refresh", "locks", "off")
	if err != nil {
		t.Fatalf("prefs auto-refresh: %v", err)
	}
	requireContains(t, out, "no")

	out, err = runCLI(t, configPath, "", "prefs")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	requireContains(t, out, "Locks")
}

func TestConfigInit(t *testing.T) {
	_, configPath := seedReviewQueue(t)
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, configPath, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, configPath, "", "config", "init", "--path", target); err == nil {
		t.Fatal("config init should refuse to overwrite without --overwrite")
	}
}

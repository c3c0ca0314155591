package generate

import (
	"strings"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	if err := (Request{Text: "restart nginx"}).Validate(); err != nil {
		t.Fatalf("minimal request should validate: %v", err)
	}
	if err := (Request{}).Validate(); err == nil {
		t.Fatalf("empty text must fail validation")
	}
	if err := (Request{Text: "ok", Mode: "poetry"}).Validate(); err == nil {
		t.Fatalf("unknown mode must fail validation")
	}
	if err := (Request{Text: strings.Repeat("x", MaxInputBytes+1)}).Validate(); err == nil {
		t.Fatalf("oversized text must fail validation")
	}
}

func TestRun_SplitsTasks(t *testing.T) {
	pb, err := Run(Request{Text: "stop the service; back up the data then start the service"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pb.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(pb.Steps))
	}
	if pb.Mode != "runbook" {
		t.Fatalf("expected default mode runbook, got %q", pb.Mode)
	}
	if pb.Steps[0].Index != 1 || pb.Steps[2].Index != 3 {
		t.Fatalf("steps must be numbered from 1")
	}
	if pb.Document == "" || !strings.Contains(pb.Document, "Step 2") {
		t.Fatalf("rendered document missing steps:\n%s", pb.Document)
	}
}

func TestRun_ShellModeEmitsCommands(t *testing.T) {
	pb, err := Run(Request{Text: "restart nginx", Mode: "shell"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pb.Steps[0].Command == "" {
		t.Fatalf("shell mode should emit a command skeleton")
	}

	pb, err = Run(Request{Text: "restart nginx", Mode: "ansible"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pb.Steps[0].Command != "" {
		t.Fatalf("non-shell modes stay descriptive")
	}
}

func TestRun_Deterministic(t *testing.T) {
	req := Request{Text: "drain node a; reboot node a; uncordon node a"}
	a, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Document != b.Document {
		t.Fatalf("generation must be a pure function of the request")
	}
}

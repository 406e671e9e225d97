package sieveengine

import (
	"context"
	"errors"
	"testing"

	"github.com/migadu/svbin/binary"
	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/sieve"
)

func TestRedirectWithExplicitKeep(t *testing.T) {
	script := `
if header :contains "Subject" "Security code" {
	keep;
	stop;
}

if header :contains "Subject" "Verify your candidate account" {
	keep;
	stop;
}

redirect "another@email.com";
keep;
stop;
`

	enabledExtensions := []string{"envelope", "fileinto", "regex"}
	executor, err := NewSieveExecutorWithExtensions(script, enabledExtensions)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	tests := []struct {
		name             string
		subject          string
		expectedAction   Action
		expectedCopy     bool
		expectedRedirect string
	}{
		{
			name:           "Security code match - should keep only",
			subject:        "Your Security code is 12345",
			expectedAction: ActionKeep,
		},
		{
			name:           "Verify match - should keep only",
			subject:        "Verify your candidate account",
			expectedAction: ActionKeep,
		},
		{
			name:             "No match - should redirect with keep",
			subject:          "Regular email",
			expectedAction:   ActionRedirect,
			expectedCopy:     true,
			expectedRedirect: "another@email.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Context{
				EnvelopeFrom: "sender@example.com",
				EnvelopeTo:   "recipient@example.com",
				Header: map[string][]string{
					"Subject": {tt.subject},
					"From":    {"sender@example.com"},
					"To":      {"recipient@example.com"},
				},
				Body: "Test message body",
			}

			result, err := executor.Evaluate(context.Background(), ctx)
			if err != nil {
				t.Fatalf("Failed to evaluate script: %v", err)
			}
			if result.Action != tt.expectedAction {
				t.Errorf("Expected action %s, got %s", tt.expectedAction, result.Action)
			}
			if result.Copy != tt.expectedCopy {
				t.Errorf("Expected Copy=%v, got %v", tt.expectedCopy, result.Copy)
			}
			if result.RedirectTo != tt.expectedRedirect {
				t.Errorf("Expected redirect %q, got %q", tt.expectedRedirect, result.RedirectTo)
			}
		})
	}
}

func TestRedirectWithoutExplicitKeep(t *testing.T) {
	executor, err := NewSieveExecutor(`redirect "forward@example.com";`)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{
		Header: map[string][]string{"Subject": {"Hello"}},
	})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionRedirect {
		t.Errorf("Expected action redirect, got %s", result.Action)
	}
	if result.Copy {
		t.Error("Expected Copy=false without explicit keep")
	}
	if result.RedirectTo != "forward@example.com" {
		t.Errorf("Expected redirect to forward@example.com, got %q", result.RedirectTo)
	}
}

func TestFileIntoWithExplicitKeep(t *testing.T) {
	script := `require "fileinto";
if header :contains "Subject" "Important" {
	fileinto "Important";
	keep;
}`
	executor, err := NewSieveExecutor(script)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{
		Header: map[string][]string{"Subject": {"Important meeting"}},
	})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionFileInto {
		t.Errorf("Expected action fileinto, got %s", result.Action)
	}
	if result.Mailbox != "Important" {
		t.Errorf("Expected mailbox Important, got %q", result.Mailbox)
	}
	if !result.Copy {
		t.Error("Expected Copy=true with explicit keep")
	}
}

func TestFileIntoWithoutExplicitKeep(t *testing.T) {
	script := `require "fileinto";
if header :contains "Subject" "Newsletter" {
	fileinto "Newsletters";
}`
	executor, err := NewSieveExecutor(script)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	tests := []struct {
		name           string
		subject        string
		expectedAction Action
		expectedBox    string
	}{
		{"matching subject", "Weekly Newsletter", ActionFileInto, "Newsletters"},
		{"other subject", "Invoice", ActionKeep, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Evaluate(context.Background(), Context{
				Header: map[string][]string{"Subject": {tt.subject}},
			})
			if err != nil {
				t.Fatalf("Failed to evaluate script: %v", err)
			}
			if result.Action != tt.expectedAction {
				t.Errorf("Expected action %s, got %s", tt.expectedAction, result.Action)
			}
			if result.Mailbox != tt.expectedBox {
				t.Errorf("Expected mailbox %q, got %q", tt.expectedBox, result.Mailbox)
			}
			if result.Copy {
				t.Error("Expected Copy=false")
			}
		})
	}
}

func TestFileIntoTakesPrecedenceOverRedirect(t *testing.T) {
	script := `require "fileinto";
redirect "a@example.com";
fileinto "Archive";
fileinto "Archive";
fileinto "Other";`
	executor, err := NewSieveExecutor(script)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionFileInto || result.Mailbox != "Archive" {
		t.Errorf("Expected fileinto Archive, got %s %q", result.Action, result.Mailbox)
	}
	if len(result.Mailboxes) != 2 {
		t.Errorf("Expected duplicate mailboxes to collapse, got %v", result.Mailboxes)
	}
	if len(result.Redirects) != 1 || result.Redirects[0] != "a@example.com" {
		t.Errorf("Expected redirect to be recorded, got %v", result.Redirects)
	}
}

func TestDiscard(t *testing.T) {
	executor, err := NewSieveExecutor(`if header :is "X-Spam-Flag" "YES" { discard; }`)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{
		Header: map[string][]string{"X-Spam-Flag": {"YES"}},
	})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionDiscard {
		t.Errorf("Expected action discard, got %s", result.Action)
	}
}

func TestHeaderNamesAreCaseInsensitive(t *testing.T) {
	executor, err := NewSieveExecutor(`if header :is "x-spam-flag" "yes" { discard; }`)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{
		Header: map[string][]string{"X-Spam-Flag": {"YES"}},
	})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionDiscard {
		t.Errorf("Expected action discard, got %s", result.Action)
	}
}

func TestEnvelopeAndSize(t *testing.T) {
	script := `require ["envelope", "fileinto"];
if envelope :domain :is "from" "example.com" {
	fileinto "Work";
} elsif size :over 1K {
	fileinto "Large";
}`
	executor, err := NewSieveExecutor(script)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	tests := []struct {
		name    string
		from    string
		size    int
		mailbox string
	}{
		{"envelope match", "boss@example.com", 10, "Work"},
		{"large message", "someone@other.org", 4096, "Large"},
		{"neither", "someone@other.org", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Evaluate(context.Background(), Context{
				EnvelopeFrom: tt.from,
				Size:         tt.size,
			})
			if err != nil {
				t.Fatalf("Failed to evaluate script: %v", err)
			}
			if result.Mailbox != tt.mailbox {
				t.Errorf("Expected mailbox %q, got %q", tt.mailbox, result.Mailbox)
			}
		})
	}
}

func TestSizeDefaultsToBodyLength(t *testing.T) {
	executor, err := NewSieveExecutor(`if size :over 5 { discard; }`)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	result, err := executor.Evaluate(context.Background(), Context{Body: "longer than five"})
	if err != nil {
		t.Fatalf("Failed to evaluate script: %v", err)
	}
	if result.Action != ActionDiscard {
		t.Errorf("Expected action discard, got %s", result.Action)
	}
}

func TestDisabledExtensionRejected(t *testing.T) {
	_, err := NewSieveExecutorWithExtensions(`require "fileinto"; fileinto "X";`, []string{"envelope"})
	if err == nil {
		t.Fatal("Expected error for disabled extension")
	}
	if !errors.Is(err, compiler.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	_, err = NewSieveExecutorWithExtensions(`keep;`, []string{"vacation"})
	if err == nil {
		t.Fatal("Expected error for unknown extension")
	}
}

func TestInstructionLimit(t *testing.T) {
	executor, err := NewSieveExecutor(`keep; keep; keep; keep;`)
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	executor.SetMaxInstructions(2)

	result, err := executor.Evaluate(context.Background(), Context{})
	if !errors.Is(err, sieve.ErrInstructionLimit) {
		t.Fatalf("Expected instruction limit error, got %v", err)
	}
	if result.Action != ActionKeep {
		t.Errorf("Expected keep on failure, got %s", result.Action)
	}
}

func TestCorruptProgramKeeps(t *testing.T) {
	reg, err := compiler.DefaultRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	p := sieve.NewProgram(binary.FromCode([]byte{0x7f}, nil), reg)

	result, err := NewProgramExecutor(p).Evaluate(context.Background(), Context{})
	var decodeErr *sieve.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected decode error, got %v", err)
	}
	if !errors.Is(err, sieve.ErrCorrupt) {
		t.Errorf("Expected corrupt program error, got %v", err)
	}
	if result.Action != ActionKeep {
		t.Errorf("Expected keep on failure, got %s", result.Action)
	}
}

func TestMapResult(t *testing.T) {
	tests := []struct {
		name   string
		data   sieve.Result
		action Action
		copy   bool
	}{
		{"implicit keep", sieve.Result{ImplicitKeep: true}, ActionKeep, false},
		{"explicit keep", sieve.Result{Keep: true}, ActionKeep, false},
		{"discarded", sieve.Result{Discarded: true}, ActionDiscard, false},
		{"fileinto", sieve.Result{Mailboxes: []string{"A"}}, ActionFileInto, false},
		{"fileinto keep", sieve.Result{Keep: true, Mailboxes: []string{"A"}}, ActionFileInto, true},
		{"redirect", sieve.Result{Redirects: []string{"x@y"}}, ActionRedirect, false},
		{"redirect keep", sieve.Result{Keep: true, Redirects: []string{"x@y"}}, ActionRedirect, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			got := mapResult(&data)
			if got.Action != tt.action {
				t.Errorf("Expected action %s, got %s", tt.action, got.Action)
			}
			if got.Copy != tt.copy {
				t.Errorf("Expected Copy=%v, got %v", tt.copy, got.Copy)
			}
		})
	}
}

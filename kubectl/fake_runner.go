package kubectl

import (
	"context"
	"strings"
)

// FakeRunner answers scripted command lines. Keys are the arguments joined by a single space.
type FakeRunner struct {
	Responses map[string]string
	Errors    map[string]string
	Calls     []string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Responses: map[string]string{},
		Errors:    map[string]string{},
	}
}

func (f *FakeRunner) On(commandLine, stdout string) *FakeRunner {
	f.Responses[commandLine] = stdout
	return f
}

func (f *FakeRunner) Fail(commandLine, stderr string) *FakeRunner {
	f.Errors[commandLine] = stderr
	return f
}

func (f *FakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.Calls = append(f.Calls, key)
	if stderr, ok := f.Errors[key]; ok {
		return nil, &CommandError{Args: append([]string{DefaultBinary}, args...), Stderr: stderr}
	}
	out, ok := f.Responses[key]
	if !ok {
		return nil, &CommandError{Args: append([]string{DefaultBinary}, args...), Stderr: "unexpected command"}
	}
	return []byte(strings.TrimSpace(out)), nil
}

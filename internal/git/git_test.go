package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"-c", "user.email=ci@example.com", "-c", "user.name=ci", "commit", "-q", "--allow-empty", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	return dir
}

func tag(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		cmd := exec.Command("git", "tag", name)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git tag %s: %v: %s", name, err, out)
		}
	}
}

func TestListTags_patterns(t *testing.T) {
	dir := initRepo(t)
	tag(t, dir, "beta-v1.9.0", "beta-v1.10.0", "stable-v1.0.0", "unrelated")
	ctx := context.Background()

	got, err := ListTags(ctx, dir, TagPatterns...)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	sort.Strings(got)
	want := []string{"beta-v1.10.0", "beta-v1.9.0", "stable-v1.0.0"}
	if len(got) != len(want) {
		t.Fatalf("ListTags: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListTags[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListTags_none(t *testing.T) {
	dir := initRepo(t)
	got, err := ListTags(context.Background(), dir, TagPatterns...)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListTags empty repo: got %v", got)
	}
}

func TestHeadSHA(t *testing.T) {
	dir := initRepo(t)
	sha, err := HeadSHA(context.Background(), dir)
	if err != nil {
		t.Fatalf("HeadSHA: %v", err)
	}
	if len(sha) < 40 {
		t.Errorf("HeadSHA: got %q", sha)
	}
}

func TestFetchTags_noRemote(t *testing.T) {
	dir := initRepo(t)
	if err := FetchTags(context.Background(), dir); err == nil {
		t.Error("FetchTags without origin: expected error")
	}
}

func TestListTags_notARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	dir := filepath.Join(t.TempDir(), "missing")
	if _, err := ListTags(context.Background(), dir); err == nil {
		t.Error("ListTags missing dir: expected error")
	}
}

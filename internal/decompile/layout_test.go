package decompile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOutputDir(t *testing.T) {
	mtime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := OutputDir("/out", "dsop_common", "dsop_gateway", "10.0.0.1", mtime)
	want := filepath.Join("/out", "dsop_common", "20260314-dsop_gateway@10.0.0.1")
	if got != want {
		t.Errorf("OutputDir = %q, want %q", got, want)
	}
}

func TestOutputDir_ZeroTimeFallsBackToToday(t *testing.T) {
	got := OutputDir("/out", "x", "svc", "h", time.Time{})
	today := time.Now().UTC().Format("20060102")
	want := filepath.Join("/out", "x", today+"-svc@h")
	if got != want {
		t.Errorf("OutputDir = %q, want %q", got, want)
	}
}

func TestRetainedPaths(t *testing.T) {
	jar := RetainedJarPath("/out", "svc", "h", "a.jar")
	if jar != filepath.Join("/out", "_jar", "svc@h", "a.jar") {
		t.Errorf("RetainedJarPath = %q", jar)
	}
	class := RetainedClassPath("/out", "svc", "h", "com/dsop/G.class")
	if class != filepath.Join("/out", "_class", "svc@h", "com", "dsop", "G.class") {
		t.Errorf("RetainedClassPath = %q", class)
	}
}

func TestJarStemAndClassRelPath(t *testing.T) {
	if got := JarStem("dsop_common.jar"); got != "dsop_common" {
		t.Errorf("JarStem = %q", got)
	}
	if got := JarStem("no-extension"); got != "no-extension" {
		t.Errorf("JarStem = %q", got)
	}
	if got := ClassRelPath("com.dsop.Gateway$1"); got != "com/dsop/Gateway$1.class" {
		t.Errorf("ClassRelPath = %q", got)
	}
}

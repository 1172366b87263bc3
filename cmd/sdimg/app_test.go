package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"sdimg"}, args...))
	if testing.Verbose() && stderr.Len() > 0 {
		t.Log(stderr.String())
	}
	return stdout.String(), err
}

func TestInfo(t *testing.T) {
	img := filepath.Join(t.TempDir(), "card.img")
	out, err := runApp(t, "--image", img, "--kind", "sdv2", "--blocks", "16", "info")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"card:        SDv2", "addressing:  512", "sector size: 512"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
	info, err := os.Stat(img)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 16*512 {
		t.Errorf("image size %d, want %d", info.Size(), 16*512)
	}
}

func TestReadOutOfRange(t *testing.T) {
	img := filepath.Join(t.TempDir(), "card.img")
	_, err := runApp(t, "--image", img, "--blocks", "4", "read", "--sector", "3", "--count", "2")
	if err == nil || !strings.Contains(err.Error(), "after 1 sectors") {
		t.Fatalf("expected partial read error, got %v", err)
	}
}

func TestReadHexDump(t *testing.T) {
	img := filepath.Join(t.TempDir(), "card.img")
	data := make([]byte, 4*512)
	copy(data[512:], "hello card")
	if err := os.WriteFile(img, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runApp(t, "--image", img, "read", "--sector", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "|hello card") {
		t.Errorf("hex dump missing data:\n%s", out)
	}
}

func TestSessionFlags(t *testing.T) {
	if _, err := runApp(t, "info"); err == nil {
		t.Error("expected error without a backing device")
	}
	if _, err := runApp(t, "--image", "a.img", "--spidev", "/dev/spidev0.0", "info"); err == nil {
		t.Error("expected error with both --image and --spidev")
	}
	img := filepath.Join(t.TempDir(), "card.img")
	if _, err := runApp(t, "--image", img, "--kind", "sdxc", "info"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"sdhc", "SDv2", "sdv1", "MMC"} {
		k, err := parseKind(s)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.EqualFold(k.String(), s) {
			t.Errorf("parsed %q as %s", s, k)
		}
	}
}

func TestVersionAndVerbose(t *testing.T) {
	out, err := runApp(t, "-v")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "0.1.0") {
		t.Errorf("version output %q", out)
	}
	img := filepath.Join(t.TempDir(), "card.img")
	if _, err := runApp(t, "--image", img, "--verbose", "info"); err != nil {
		t.Fatal(err)
	}
}

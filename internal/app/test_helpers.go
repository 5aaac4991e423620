package app

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/circuitgo/internal/circuit"
	"github.com/specialistvlad/circuitgo/internal/config"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteModel writes src to model.hcl in a fresh temporary directory and
// returns the directory.
func WriteModel(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.hcl"), []byte(src), 0o644); err != nil {
		t.Fatalf("writing model: %v", err)
	}
	return dir
}

// SetupAppTest creates an app over the model in dir with debug logging.
// modify may adjust the settings before validation.
func SetupAppTest(t *testing.T, dir, outPath string, modify func(*config.Config)) (*App, *SafeBuffer, *SafeBuffer) {
	t.Helper()

	settings := config.Default()
	settings.Logging.Level = "debug"
	if modify != nil {
		modify(settings)
	}
	cfg, err := NewConfig(Config{ModelPaths: []string{dir}, OutPath: outPath, Settings: settings})
	if err != nil {
		t.Fatalf("invalid test configuration: %v", err)
	}

	out, logs := &SafeBuffer{}, &SafeBuffer{}
	testApp, err := NewApp(out, logs, cfg, circuit.NewLoader())
	if err != nil {
		t.Fatalf("creating app: %v", err)
	}

	t.Cleanup(func() {
		if os.Getenv("CIRCUITGO_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return testApp, out, logs
}

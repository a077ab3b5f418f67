package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATA_DIR", "/tmp/rr")
	t.Setenv("DELAY_MIN_MS", "5000")
	t.Setenv("MAX_PAGES", "not-a-number")

	c := Load()
	assert.Equal(t, "/tmp/rr", c.DataDir)
	assert.Equal(t, filepath.Join("/tmp/rr", "cookies.json"), c.SessionFile)
	assert.Equal(t, 5*time.Second, c.DelayMin)
	assert.Equal(t, 10, c.MaxPages)
	assert.Equal(t, "file", c.StoreBackend)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DOUBAN_SUBJECT=1292052\nSTORE_BACKEND=sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORE_BACKEND", "postgres")
	t.Cleanup(func() { os.Unsetenv("DOUBAN_SUBJECT") })

	c := Load()
	assert.Equal(t, "1292052", c.DoubanSubject)
	assert.Equal(t, "postgres", c.StoreBackend, "process env wins over .env")
}

func TestOpenAIWithoutKeyFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SENTIMENT_BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	assert.Equal(t, "lexicon", Load().SentimentBackend)
}

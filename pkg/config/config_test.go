package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("does-not-exist", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sql", cfg.Provisioner.Backend)
	assert.Equal(t, 30*time.Second, cfg.Provisioner.CallTimeout)
	assert.Equal(t, 3, cfg.Provisioner.Retry.MaxAttempts)
	assert.True(t, cfg.Provisioner.Breaker.Enabled)
	assert.True(t, cfg.Provisioner.RequirePrimary)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, "docindex.outcomes", cfg.Kafka.Topic)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, "provisioner", `
provisioner:
  backend: elasticsearch
  call_timeout: 5s
  retry:
    max_attempts: 7
database:
  driver: sqlite
  path: /tmp/test.db
`)
	t.Setenv("DOCINDEX_PROVISIONER_CREATE_RATE", "2.5")
	t.Setenv("DOCINDEX_ELASTICSEARCH_ADDRESSES", "http://es1:9200, http://es2:9200")

	cfg, err := Load("provisioner", dir)
	require.NoError(t, err)

	assert.Equal(t, "elasticsearch", cfg.Provisioner.Backend)
	assert.Equal(t, 5*time.Second, cfg.Provisioner.CallTimeout)
	assert.Equal(t, 7, cfg.Provisioner.Retry.MaxAttempts)
	assert.Equal(t, 2.5, cfg.Provisioner.CreateRate)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN())
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	dir := writeConfig(t, "provisioner", "provisioner:\n  backend: couch\n")

	_, err := Load("provisioner", dir)
	assert.ErrorContains(t, err, "provisioner.backend")
}

func TestConverters(t *testing.T) {
	assert.Nil(t, BreakerConfig{Enabled: false}.ToBreakerConfig())

	b := BreakerConfig{Enabled: true, MinRequests: 2, Timeout: time.Minute}.ToBreakerConfig()
	require.NotNil(t, b)
	assert.Equal(t, uint32(2), b.MinRequests)
	assert.Equal(t, time.Minute, b.Timeout)

	r := RetryConfig{MaxAttempts: 1}.ToRetryConfig()
	assert.Equal(t, 1, r.MaxAttempts)
	assert.Greater(t, r.InitialDelay, time.Duration(0))

	db := DatabaseConfig{Driver: "postgres", Host: "h", Port: 1, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", db.ToDatabaseConfig().DSN)
}

func TestLoad_LockDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist", t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.Provisioner.Lock.Enabled)
	assert.Equal(t, "docindex:drift-repair", cfg.Provisioner.Lock.Key)
	assert.Equal(t, 15*time.Minute, cfg.Provisioner.Lock.TTL)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("provisioner", filepath.Join("..", "..", "configs"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./configs/entities.yaml", cfg.Provisioner.Manifest)
}

func TestElasticsearchClientConfig(t *testing.T) {
	es := ElasticsearchConfig{Addresses: []string{"http://es:9200"}, APIKey: "k", MaxRetries: 2}.ToClientConfig()

	assert.Equal(t, []string{"http://es:9200"}, es.Addresses)
	assert.Equal(t, "k", es.APIKey)
	assert.Equal(t, 2, es.MaxRetries)
}

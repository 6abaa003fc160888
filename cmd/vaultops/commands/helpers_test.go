package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendersight/vaultops/internal/config"
	"github.com/tendersight/vaultops/internal/logging"
)

// testConfig writes a vaultops.yaml into a temp dir and returns a Config
// pointing at it, set up the way the root command's persistent flags would.
// Log output is captured in the returned buffer.
func testConfig(t *testing.T, body string) (*config.Config, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vaultops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	logs := &bytes.Buffer{}
	return &config.Config{
		Path:   path,
		Logger: logging.NewWithWriter(logs, false, true),
	}, logs
}

// pinStoreEnv keeps ambient VAULT_* variables from overriding the fixture
// config. Tests calling this cannot run in parallel.
func pinStoreEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")
	t.Setenv("VAULT_SKIP_VERIFY", "")
}

// fakeStore serves just enough of the store API for command-level tests:
// seal status and unseal, AppRole roles, policy reads, and KV writes.
type fakeStore struct {
	initialized bool
	sealed      bool
	threshold   int
	progress    int
	version     string
	acceptShare string

	roles        map[string]string // role name -> role ID
	policies     map[string]bool
	kv           map[string]map[string]string
	created      map[string]map[string]interface{}
	secretSeq    int
	denySecretID bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		initialized: true,
		threshold:   1,
		version:     "1.16.2",
		roles:       map[string]string{},
		policies:    map[string]bool{},
		kv:          map[string]map[string]string{},
		created:     map[string]map[string]interface{}{},
	}
}

func (f *fakeStore) start(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/sys/seal-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"initialized": f.initialized,
			"sealed":      f.sealed,
			"t":           f.threshold,
			"progress":    f.progress,
			"version":     f.version,
		})
	})

	mux.HandleFunc("GET /v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		code := 200
		switch {
		case !f.initialized:
			code = 501
		case f.sealed:
			code = 503
		}
		writeJSON(w, code, map[string]interface{}{
			"initialized": f.initialized,
			"sealed":      f.sealed,
			"standby":     false,
			"version":     f.version,
		})
	})

	mux.HandleFunc("PUT /v1/sys/unseal", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["key"] != f.acceptShare {
			writeJSON(w, 400, map[string]interface{}{"errors": []string{"unseal key invalid"}})
			return
		}
		f.progress++
		if f.progress >= f.threshold {
			f.sealed = false
			f.progress = 0
		}
		writeJSON(w, 200, map[string]interface{}{
			"initialized": f.initialized,
			"sealed":      f.sealed,
			"t":           f.threshold,
			"progress":    f.progress,
		})
	})

	mux.HandleFunc("GET /v1/auth/approle/role/{role}/role-id", func(w http.ResponseWriter, r *http.Request) {
		roleID, ok := f.roles[r.PathValue("role")]
		if !ok {
			writeJSON(w, 404, map[string]interface{}{"errors": []string{"role does not exist"}})
			return
		}
		writeJSON(w, 200, map[string]interface{}{"data": map[string]interface{}{"role_id": roleID}})
	})

	mux.HandleFunc("POST /v1/auth/approle/role/{role}/secret-id", func(w http.ResponseWriter, r *http.Request) {
		if f.denySecretID {
			writeJSON(w, 403, map[string]interface{}{"errors": []string{"permission denied"}})
			return
		}
		f.secretSeq++
		writeJSON(w, 200, map[string]interface{}{
			"data": map[string]interface{}{
				"secret_id":          fmt.Sprintf("secret-%04d-%s", f.secretSeq, r.PathValue("role")),
				"secret_id_accessor": fmt.Sprintf("accessor-%04d", f.secretSeq),
				"secret_id_ttl":      3600,
				"secret_id_num_uses": 0,
			},
		})
	})

	mux.HandleFunc("GET /v1/auth/approle/role/{role}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.roles[r.PathValue("role")]; !ok {
			writeJSON(w, 404, map[string]interface{}{"errors": []string{"role does not exist"}})
			return
		}
		writeJSON(w, 200, map[string]interface{}{"data": map[string]interface{}{}})
	})

	mux.HandleFunc("POST /v1/auth/approle/role/{role}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		role := r.PathValue("role")
		f.roles[role] = "rid-" + role
		f.created[role] = body
		w.WriteHeader(204)
	})

	mux.HandleFunc("GET /v1/sys/policies/acl/{name}", func(w http.ResponseWriter, r *http.Request) {
		if !f.policies[r.PathValue("name")] {
			w.WriteHeader(404)
			return
		}
		writeJSON(w, 200, map[string]interface{}{"name": r.PathValue("name")})
	})

	mux.HandleFunc("POST /v1/secret/data/{path...}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data map[string]string `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.kv[r.PathValue("path")] = body.Data
		writeJSON(w, 200, map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

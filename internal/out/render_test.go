package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/registrylabs/registry-cli/internal/config"
	"github.com/registrylabs/registry-cli/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"tx_hash": "0xabc", "fee_paid_base_units": "10"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"tx_hash"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["tx_hash"] != "0xabc" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["fee_paid_base_units"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"state": "confirmed", "attempt_id": "att_1"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "state=confirmed") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderEnvelopeCarriesError(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: false,
		Error:   &model.ErrorBody{Code: 25, Type: "WALLET_TIMEOUT", Message: "no confirmation", Retryable: true},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	errBody, ok := decoded["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error body: %s", buf.String())
	}
	if errBody["type"] != "WALLET_TIMEOUT" || errBody["retryable"] != true {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

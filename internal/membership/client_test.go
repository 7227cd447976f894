package membership

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/db"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:   server.URL,
		ProgramID: "PROG-1",
		APIKey:    "test-key",
		APISecret: "test-secret",
	}, zap.NewNop())
	client.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	return client, server
}

func TestTokenIsValidHS256(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {})

	token, err := client.token()
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatal(err)
	}
	if header["alg"] != "HS256" || header["typ"] != "JWT" {
		t.Errorf("header = %v", header)
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload struct {
		UID string `json:"uid"`
		Iat int64  `json:"iat"`
		Exp int64  `json:"exp"`
	}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UID != "test-key" {
		t.Errorf("uid = %q, want test-key", payload.UID)
	}
	if payload.Exp-payload.Iat != 3605 {
		t.Errorf("token lifetime = %d, want 3605 (backdated iat)", payload.Exp-payload.Iat)
	}

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if parts[2] != want {
		t.Error("signature does not verify against the shared secret")
	}
}

func TestEnroll(t *testing.T) {
	var got memberPayload
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/members/member" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("missing Authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(memberResponse{ID: "MEM-42"})
	})

	customer := &db.Customer{ID: "CUST-001", Name: "Ana", MobileNo: "+15550001"}
	result, err := client.Enroll(context.Background(), customer)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if result.ID != "MEM-42" {
		t.Errorf("result.ID = %q, want MEM-42", result.ID)
	}
	if got.ExternalID != "CUST-001" || got.Person.MobileNumber != "+15550001" {
		t.Errorf("payload = %+v", got)
	}
	if got.Status != "ENROLLED" {
		t.Errorf("status = %q, want ENROLLED", got.Status)
	}
	if got.TierID != "base" {
		t.Errorf("tier id = %q, want default base", got.TierID)
	}
}

func TestUpdateOmitsStatus(t *testing.T) {
	var got memberPayload
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(memberResponse{ID: "MEM-42"})
	})

	customer := &db.Customer{ID: "CUST-001", Name: "Ana", MobileNo: "+15550001"}
	if _, err := client.Update(context.Background(), customer); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != "" {
		t.Errorf("update payload carries status %q, want none", got.Status)
	}
}

func TestEnrollProviderError(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	customer := &db.Customer{ID: "CUST-001", Name: "Ana", MobileNo: "+15550001"}
	if _, err := client.Enroll(context.Background(), customer); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestFindByMobile(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/members/member/list/PROG-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req listRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		filters := req.Filters.FilterGroups[0].FieldFilters
		if filters[0].FilterField != "mobileNumber" || filters[0].FilterValue != "+15550001" {
			t.Errorf("filters = %+v", filters)
		}
		w.Write([]byte(`{"result":{"id":"MEM-42"}}`))
	})

	id, err := client.FindByMobile(context.Background(), "+15550001")
	if err != nil {
		t.Fatal(err)
	}
	if id != "MEM-42" {
		t.Errorf("id = %q, want MEM-42", id)
	}
}

func TestDelete(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	if err := client.Delete(context.Background(), "CUST-001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

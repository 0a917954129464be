package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	req := CreateOrderRequest{CustomerID: "cust-123", ItemID: "item-9", Quantity: 3}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	in := req.ToInput()
	if in.CustomerID != "cust-123" || in.ItemID != "item-9" || in.Quantity != 3 {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestCreateOrderRequest_MissingFields(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		// CustomerID, ItemID and Quantity missing
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestCreateOrderRequest_NonPositiveQuantity(t *testing.T) {
	v := New()

	for _, q := range []int{0, -1} {
		req := CreateOrderRequest{CustomerID: "c", ItemID: "i", Quantity: q}
		if err := v.Struct(req); err == nil {
			t.Fatalf("expected validation error for quantity %d, got nil", q)
		}
	}
}

func TestCreateOrderRequest_BlankIdentifiers(t *testing.T) {
	v := New()

	req := CreateOrderRequest{CustomerID: "   ", ItemID: "\t", Quantity: 1}
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation error for blank identifiers, got nil")
	}
	fields := fieldErrors(err)
	if fields["customer_id"] != "notblank" || fields["item_id"] != "notblank" {
		t.Fatalf("unexpected field errors: %v", fields)
	}
}

func TestValidateIdempotencyKey(t *testing.T) {
	v := New()

	valid := []string{"key-1", "8f14e45f-ceea-467f-a0e6-0d5ba1d3c1a2", strings.Repeat("k", 255)}
	for _, k := range valid {
		if err := ValidateIdempotencyKey(v, k); err != nil {
			t.Fatalf("expected %q to be valid, got %v", k, err)
		}
	}

	invalid := []string{"", strings.Repeat("k", 256), "café", "tab\tkey"}
	for _, k := range invalid {
		if err := ValidateIdempotencyKey(v, k); err == nil {
			t.Fatalf("expected %q to be rejected", k)
		}
	}
}

func bindRequest(t *testing.T, body string) (*httptest.ResponseRecorder, CreateOrderRequest, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateOrderRequest
	err := BindAndValidate(c, &req, New())
	return w, req, err
}

func TestBindAndValidate_Success(t *testing.T) {
	w, req, err := bindRequest(t, `{"customer_id":"c1","item_id":"i1","quantity":3}`)
	if err != nil {
		t.Fatalf("expected success, got %v (body %s)", err, w.Body.String())
	}
	if req.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", req.Quantity)
	}
}

func TestBindAndValidate_RejectsBadBodies(t *testing.T) {
	cases := map[string]struct {
		body    string
		wantErr string
	}{
		"not json":            {`{"customer_id":`, MessageInvalidJSON},
		"string quantity":     {`{"customer_id":"c1","item_id":"i1","quantity":"3"}`, MessageInvalidJSON},
		"fractional quantity": {`{"customer_id":"c1","item_id":"i1","quantity":1.5}`, MessageInvalidJSON},
		"missing item":        {`{"customer_id":"c1","quantity":1}`, MessageInvalidFields},
		"zero quantity":       {`{"customer_id":"c1","item_id":"i1","quantity":0}`, MessageInvalidFields},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, _, err := bindRequest(t, tc.body)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["error"] != tc.wantErr {
				t.Fatalf("expected error %q, got %v", tc.wantErr, resp["error"])
			}
		})
	}
}

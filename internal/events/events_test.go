package events

import (
	"encoding/json"
	"testing"
)

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	body := `{
		"order_id": "o-1",
		"amount": 500,
		"items": [{"product_id": "P1", "quantity": 10, "color": "red"}],
		"schema_version": 7
	}`

	var evt OrderCreated
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if evt.OrderID != "o-1" || evt.Amount != 500 {
		t.Fatalf("decoded %+v", evt)
	}
	if len(evt.Items) != 1 || evt.Items[0].Quantity != 10 {
		t.Fatalf("items decoded as %+v", evt.Items)
	}
}

func TestOrderCreatedValidate(t *testing.T) {
	cases := []struct {
		name    string
		evt     OrderCreated
		wantErr bool
	}{
		{"valid", OrderCreated{OrderID: "o-1", Items: []OrderItem{{ProductID: "P1", Quantity: 1}}}, false},
		{"no items", OrderCreated{OrderID: "o-1"}, false},
		{"missing order id", OrderCreated{Items: []OrderItem{{ProductID: "P1", Quantity: 1}}}, true},
		{"missing product id", OrderCreated{OrderID: "o-1", Items: []OrderItem{{Quantity: 1}}}, true},
		{"zero quantity", OrderCreated{OrderID: "o-1", Items: []OrderItem{{ProductID: "P1"}}}, true},
		{"negative quantity", OrderCreated{OrderID: "o-1", Items: []OrderItem{{ProductID: "P1", Quantity: -2}}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPaymentProcessedValidate(t *testing.T) {
	evt := PaymentProcessed{Success: true, Reason: "Authorized"}
	if err := evt.Validate(); err == nil {
		t.Fatal("missing order_id accepted")
	}

	evt.OrderID = "o-1"
	if err := evt.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

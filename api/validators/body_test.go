package validators

import (
	"testing"

	"github.com/certikapp/certik-backend/internal/certificate"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
)

func TestDecodeJSONString(t *testing.T) {
	payload := `{
		"name": "Intro to Systems",
		"issuerName": "Acme Academy",
		"recipientName": "Jordan Lee",
		"recipientAddress": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"issueDate": "2025-01-10"
	}`

	var input certificate.Input
	if err := DecodeJSONString(payload, &input); err != nil {
		t.Fatalf("DecodeJSONString: %v", err)
	}
	if input.Name != "Intro to Systems" {
		t.Fatalf("unexpected input: %+v", input)
	}
}

func TestDecodeJSONStringRejectsUnknownFields(t *testing.T) {
	var input certificate.Input
	err := DecodeJSONString(`{"bogus": true}`, &input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeValidation, err)
	}
}

func TestDecodeJSONStringFieldMessages(t *testing.T) {
	payload := `{"name":"Cert","issuerName":"Acme","recipientName":"J","recipientAddress":"nope","issueDate":"2025-01-10"}`

	var input certificate.Input
	err := DecodeJSONString(payload, &input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeValidation, err)
	}

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %+v", pkgerrors.As(err).Details())
	}
	// Field names surface by json tag, not struct field name.
	if details["recipientAddress"] != "must be a valid ledger address" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestDecodeJSONStringMissingFields(t *testing.T) {
	var input certificate.Input
	err := DecodeJSONString(`{}`, &input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeValidation, err)
	}
	details := pkgerrors.As(err).Details().(map[string]string)
	if details["name"] != "is required" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

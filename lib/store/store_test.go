package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
)

func TestErrorUnwrap(t *testing.T) {
	cause := engine.NewError(engine.ConstraintError, "key exists")
	err := WrapError(RetCEngineRequestError, cause, "add failed")

	if !errors.Is(err, engine.ErrConstraint) {
		t.Error("Expected errors.Is to reach the engine error")
	}
	var eerr *engine.Error
	if !errors.As(err, &eerr) || eerr.Code != 9 {
		t.Errorf("Expected engine error with code 9, got %v", eerr)
	}
	if !strings.Contains(err.Error(), "EngineRequestError") {
		t.Errorf("Expected code name in message, got %s", err.Error())
	}
}

func TestRetCodeString(t *testing.T) {
	if RetCSchemaError.String() != "SchemaError" {
		t.Errorf("Expected SchemaError, got %s", RetCSchemaError)
	}
	if RetCode(99).String() != "Unknown" {
		t.Errorf("Expected Unknown, got %s", RetCode(99))
	}
}

func TestIndexDetails(t *testing.T) {
	if (IndexDetails{Order: "desc"}).Descending() != true {
		t.Error("Expected desc to be descending")
	}
	if (IndexDetails{}).Descending() {
		t.Error("Expected default order to be ascending")
	}
}

package expr

import "testing"

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	return e
}

func TestParseAndPrecedence(t *testing.T) {
	e := mustParse(t, "a == 1 AND b == 2 OR c == 3")
	or, ok := e.(*Or)
	if !ok {
		t.Fatalf("expected top-level Or, got %T", e)
	}
	if _, ok := or.Left.(*And); !ok {
		t.Fatalf("expected left of Or to be And, got %T", or.Left)
	}
}

func TestParseParenGrouping(t *testing.T) {
	e := mustParse(t, "(a == 1 OR b == 2) AND c == 3")
	and, ok := e.(*And)
	if !ok {
		t.Fatalf("expected top-level And, got %T", e)
	}
	if _, ok := and.Left.(*Or); !ok {
		t.Fatalf("expected left of And to be Or, got %T", and.Left)
	}
}

func TestEvaluateEquality(t *testing.T) {
	e := mustParse(t, "status == \"success\"")
	ok, err := Evaluate(e, Params{"status": {Value: "success", Kind: "string"}})
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateAddressEqualityNormalizes(t *testing.T) {
	e := mustParse(t, "to == \"0xABC 123\"")
	ok, err := Evaluate(e, Params{"to": {Value: " 0xabc123 ", Kind: "address"}})
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateOrderingNumeric(t *testing.T) {
	e := mustParse(t, "value > 100")
	ok, err := Evaluate(e, Params{"value": {Value: "250", Kind: "u256"}})
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateOrderingRejectsNonNumeric(t *testing.T) {
	e := mustParse(t, "value > 100")
	_, err := Evaluate(e, Params{"value": {Value: "abc", Kind: "string"}})
	var tme *TypeMismatchError
	if err == nil {
		t.Fatal("expected TypeMismatchError, got nil")
	}
	if !asTypeMismatch(err, &tme) {
		t.Fatalf("expected TypeMismatchError, got %T: %v", err, err)
	}
}

func asTypeMismatch(err error, target **TypeMismatchError) bool {
	if e, ok := err.(*TypeMismatchError); ok {
		*target = e
		return true
	}
	return false
}

func TestEvaluateFieldNotFound(t *testing.T) {
	e := mustParse(t, "missing == 1")
	_, err := Evaluate(e, Params{})
	if _, ok := err.(*FieldNotFoundError); !ok {
		t.Fatalf("expected FieldNotFoundError, got %T: %v", err, err)
	}
}

func TestEvaluateNestedKeyTraversal(t *testing.T) {
	e := mustParse(t, "args.recipient == \"0xdead\"")
	params := Params{"args": {Value: `{"recipient":"0xdead","amount":5}`, Kind: "map"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateNestedIndexTraversal(t *testing.T) {
	e := mustParse(t, "topics[0] == \"Transfer\"")
	params := Params{"topics": {Value: `["Transfer","0xdead","0xbeef"]`, Kind: "vec"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateIndexOutOfBounds(t *testing.T) {
	e := mustParse(t, "topics[5] == \"x\"")
	params := Params{"topics": {Value: `["a","b"]`, Kind: "vec"}}
	_, err := Evaluate(e, params)
	if _, ok := err.(*IndexOutOfBoundsError); !ok {
		t.Fatalf("expected IndexOutOfBoundsError, got %T: %v", err, err)
	}
}

func TestEvaluateStellarMapShorthand(t *testing.T) {
	e := mustParse(t, "fields.amount == 10")
	params := Params{"fields": {Value: "{amount:10,symbol:USD}", Kind: "map"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateMapContainsKey(t *testing.T) {
	e := mustParse(t, "fields contains \"symbol\"")
	params := Params{"fields": {Value: "{amount:10,symbol:USD}", Kind: "map"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateVecContainsElement(t *testing.T) {
	e := mustParse(t, "topics contains \"Transfer\"")
	params := Params{"topics": {Value: `["Transfer","Approval"]`, Kind: "vec"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateStringContains(t *testing.T) {
	e := mustParse(t, "hash contains \"dead\"")
	params := Params{"hash": {Value: "0xdeadbeef", Kind: "address"}}
	ok, err := Evaluate(e, params)
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want true", ok, err)
	}
}

func TestEvaluateStartsWithEndsWith(t *testing.T) {
	params := Params{"name": {Value: "TransferEvent", Kind: "string"}}
	ok, err := Evaluate(mustParse(t, "name startswith \"Transfer\""), params)
	if err != nil || !ok {
		t.Fatalf("startswith: got ok=%v err=%v", ok, err)
	}
	ok, err = Evaluate(mustParse(t, "name endswith \"Event\""), params)
	if err != nil || !ok {
		t.Fatalf("endswith: got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateAndShortCircuits(t *testing.T) {
	e := mustParse(t, "status == \"failure\" AND missing == 1")
	ok, err := Evaluate(e, Params{"status": {Value: "success", Kind: "string"}})
	if err != nil {
		t.Fatalf("expected no error from short-circuit, got %v", err)
	}
	if ok {
		t.Fatal("expected false")
	}
}

func TestEvaluateOrShortCircuits(t *testing.T) {
	e := mustParse(t, "status == \"success\" OR missing == 1")
	ok, err := Evaluate(e, Params{"status": {Value: "success", Kind: "string"}})
	if err != nil {
		t.Fatalf("expected no error from short-circuit, got %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	_, err := Parse("a == 1 )")
	if err == nil {
		t.Fatal("expected parse error for trailing input")
	}
}

package twitter

import (
	"encoding/json"
	"testing"
)

func TestChallengeResponse(t *testing.T) {
	got := ChallengeResponse("secret", "abc")
	want := "sha256=mUba1OAOkT/Ivo5dP34RCkqegy+D+wnDRShdeGONig4="
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNewCRCResponse_JSON(t *testing.T) {
	data, err := json.Marshal(NewCRCResponse("secret", "abc"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"response_token":"sha256=mUba1OAOkT/Ivo5dP34RCkqegy+D+wnDRShdeGONig4="}`
	if string(data) != want {
		t.Errorf("got %s", data)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	valid := "sha256=qp4uNXX11wmLbKzNeQiIw21f22M0KnO62i1qUXR6hJQ="

	if !VerifySignature("secret", body, valid) {
		t.Error("valid signature should verify")
	}
	if VerifySignature("other", body, valid) {
		t.Error("wrong secret should not verify")
	}
	if VerifySignature("secret", body, "") {
		t.Error("empty header should not verify")
	}
	if VerifySignature("secret", body, "qp4uNXX11wmLbKzNeQiIw21f22M0KnO62i1qUXR6hJQ=") {
		t.Error("header without prefix should not verify")
	}
}

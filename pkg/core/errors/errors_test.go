package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error message")

	if err.Error() != "test error message" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Code() != CodeUnknown {
		t.Errorf("Code() = %v, want %v", err.Code(), CodeUnknown)
	}
	if err.Severity() != SeverityMedium {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityMedium)
	}
	if err.Timestamp().IsZero() {
		t.Error("Timestamp() should not be zero")
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		message  string
		wantNil  bool
		wantMsg  string
		wantCode Code
	}{
		{
			name:    "wrap nil error",
			err:     nil,
			message: "wrapper",
			wantNil: true,
		},
		{
			name:     "wrap standard error",
			err:      stderrors.New("original"),
			message:  "wrapper",
			wantMsg:  "wrapper: original",
			wantCode: CodeUnknown,
		},
		{
			name:     "wrap structured error keeps code",
			err:      New("original").WithCode(CodeStorageOperation),
			message:  "wrapper",
			wantMsg:  "wrapper: original",
			wantCode: CodeStorageOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.err, tt.message)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Wrap() = %v, want nil", got)
				}
				return
			}
			if got.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got.Error(), tt.wantMsg)
			}
			if got.Code() != tt.wantCode {
				t.Errorf("Code() = %v, want %v", got.Code(), tt.wantCode)
			}
			if !stderrors.Is(got, tt.err) {
				t.Error("wrapped error should match original with errors.Is")
			}
		})
	}
}

func TestWrap_TruncatesDeepChains(t *testing.T) {
	var err error = New("root")
	for i := 0; i < MaxErrorChainDepth+5; i++ {
		err = Wrap(err, fmt.Sprintf("level %d", i))
	}
	if d := chainDepth(err); d > MaxErrorChainDepth+1 {
		t.Errorf("chain depth = %d, want <= %d", d, MaxErrorChainDepth+1)
	}
}

func TestHasCode_WalksChain(t *testing.T) {
	inner := MissingParameter("load", "id")
	outer := fmt.Errorf("request failed: %w", Wrap(inner, "command load").WithCode(CodeInternal))

	if !HasCode(outer, CodeMissingParameter) {
		t.Error("HasCode should find inner code through wrapping")
	}
	if !HasCode(outer, CodeInternal) {
		t.Error("HasCode should find outer code")
	}
	if HasCode(outer, CodeBundleConflict) {
		t.Error("HasCode matched an unrelated code")
	}
	if GetCode(outer) != CodeInternal {
		t.Errorf("GetCode() = %v, want %v", GetCode(outer), CodeInternal)
	}
	if GetCode(stderrors.New("plain")) != CodeUnknown {
		t.Error("GetCode on plain error should be UNKNOWN")
	}
}

func TestSoft(t *testing.T) {
	err := Soft("nothing to do")
	if !IsSoft(err) {
		t.Error("IsSoft should be true")
	}
	if err.Severity() != SeverityLow {
		t.Errorf("Severity() = %v, want low", err.Severity())
	}
	if IsSoft(Configuration("bad")) {
		t.Error("configuration errors are not soft")
	}
}

func TestTaxonomyDetails(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code Code
		keys []string
	}{
		{"missing parameter", MissingParameter("cmd", "p"), CodeMissingParameter, []string{"command", "parameter"}},
		{"validation", Validation("cmd", "p", "too long"), CodeValidationFailed, []string{"command", "parameter", "reason"}},
		{"missing dependency", MissingDependency("a", "b"), CodeMissingDependency, []string{"bundle", "dependency"}},
		{"too old", VersionTooOld("a", "b", "1.0.0", "2.0.0"), CodeVersionTooOld, []string{"installed", "min"}},
		{"too new", VersionTooNew("a", "b", "3.0.0", "2.0.0"), CodeVersionTooNew, []string{"installed", "max"}},
		{"excluded", ExcludedVersion("a", "b", "1.0.0"), CodeExcludedVersion, []string{"installed"}},
		{"conflict", Conflict("a", []string{"x", "y"}), CodeBundleConflict, []string{"conflicts"}},
		{"unknown chain", UnknownChain("c"), CodeUnknownChain, []string{"chain"}},
		{"duplicate chain", DuplicateChain("c"), CodeDuplicateChain, []string{"chain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", tt.err.Code(), tt.code)
			}
			for _, k := range tt.keys {
				if _, ok := tt.err.Detail(k); !ok {
					t.Errorf("missing detail %q", k)
				}
			}
		})
	}
}

func TestConflict_ListsAllNames(t *testing.T) {
	err := Conflict("blog", []string{"forum", "wiki"})
	if !strings.Contains(err.Error(), "forum") || !strings.Contains(err.Error(), "wiki") {
		t.Errorf("Error() = %q, should list every conflict", err.Error())
	}
}

func TestStorageOperation(t *testing.T) {
	cause := stderrors.New("disk full")
	err := StorageOperation("save", cause)
	if err.Code() != CodeStorageOperation {
		t.Errorf("Code() = %v", err.Code())
	}
	if err.Operation() != "save" {
		t.Errorf("Operation() = %q", err.Operation())
	}
	if !stderrors.Is(err, cause) {
		t.Error("StorageOperation should wrap cause")
	}
	if StorageOperation("ping", nil).Code() != CodeStorageOperation {
		t.Error("nil cause should still carry the storage code")
	}
}

func TestGetDetail(t *testing.T) {
	err := Wrap(Validation("create", "title", "empty"), "request")
	v, ok := GetDetail(err, "parameter")
	if !ok || v != "title" {
		t.Errorf("GetDetail() = %v, %v", v, ok)
	}
}

func TestMarshalJSON(t *testing.T) {
	err := UnknownChain("safeHTML").WithOperation("filters.run")
	data, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("Marshal: %v", jerr)
	}
	var decoded map[string]any
	if jerr := json.Unmarshal(data, &decoded); jerr != nil {
		t.Fatalf("Unmarshal: %v", jerr)
	}
	if decoded["code"] != string(CodeUnknownChain) {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["operation"] != "filters.run" {
		t.Errorf("operation = %v", decoded["operation"])
	}
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeMissingParameter, 400},
		{CodeValidationFailed, 400},
		{CodeNotFound, 404},
		{CodeUnknownChain, 404},
		{CodeDuplicateChain, 409},
		{CodeConfiguration, 500},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSeverityForCode(t *testing.T) {
	if SeverityForCode(CodeBundleConflict) != SeverityHigh {
		t.Error("bundle conflicts should be high severity")
	}
	if !SeverityHigh.ShouldAlert() || SeverityLow.ShouldAlert() {
		t.Error("ShouldAlert threshold is high")
	}
	if Severity(42).String() != "unknown" {
		t.Error("out of range severity should be unknown")
	}
}

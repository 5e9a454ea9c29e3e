// Package validation はJSONリクエストボディをスキーマで検証してからデコードする。
// スキーマはリクエスト構造体のタグから生成する。
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// MaxBodyBytes は受け付けるリクエストボディの最大サイズ。
const MaxBodyBytes = 64 << 10

// ErrInvalidRequest はリクエストボディがスキーマに一致しないことを示す。
var ErrInvalidRequest = errors.New("invalid request")

// RegisterRequest はPOST /registerのリクエストボディ。
type RegisterRequest struct {
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100"`
	Email    string `json:"email" jsonschema:"format=email,maxLength=254"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=72"`
}

// LoginRequest はPOST /loginのリクエストボディ。
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=72"`
}

// Error はスキーマ検証の失敗理由を保持する。
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, e.Reason)
}

// Unwrap はerrors.Is(err, ErrInvalidRequest)を可能にする。
func (e *Error) Unwrap() error {
	return ErrInvalidRequest
}

// Validator はリクエスト種別ごとのコンパイル済みスキーマを保持する。
type Validator struct {
	register *jschema.Schema
	login    *jschema.Schema
}

// NewValidator はリクエスト構造体からスキーマを生成・コンパイルする。
func NewValidator() (*Validator, error) {
	register, err := compile("register.json", &RegisterRequest{})
	if err != nil {
		return nil, err
	}
	login, err := compile("login.json", &LoginRequest{})
	if err != nil {
		return nil, err
	}
	return &Validator{register: register, login: login}, nil
}

// DecodeRegister はPOST /registerのボディを検証してデコードする。
func (v *Validator) DecodeRegister(body io.Reader) (*RegisterRequest, error) {
	req := &RegisterRequest{}
	if err := decode(v.register, body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeLogin はPOST /loginのボディを検証してデコードする。
func (v *Validator) DecodeLogin(body io.Reader) (*LoginRequest, error) {
	req := &LoginRequest{}
	if err := decode(v.login, body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GenerateSchema はリクエスト構造体のJSON Schemaを生成する。
// 未知のフィールドは無視するため追加プロパティを許可する。
func GenerateSchema(v any) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

func compile(name string, v any) (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema(v)
	if err != nil {
		return nil, err
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return sch, nil
}

func decode(sch *jschema.Schema, body io.Reader, dst any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil {
		return &Error{Reason: "failed to read body"}
	}
	if len(data) > MaxBodyBytes {
		return &Error{Reason: "body too large"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Error{Reason: "body is empty"}
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &Error{Reason: "malformed JSON"}
	}

	if err := sch.Validate(inst); err != nil {
		return &Error{Reason: FormatSchemaError(err)}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return &Error{Reason: "malformed JSON"}
	}
	return nil
}

// FormatSchemaError は検証エラーから最も詳細な原因の1行を取り出す。
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}

	reason := ""
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			reason = line
		}
	}
	return reason
}
